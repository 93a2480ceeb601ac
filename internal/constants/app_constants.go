package constants

const (
	// NormalizerVersion 写入解析结果，便于缓存失效
	NormalizerVersion = "1.0"

	// GeneralCriterion 目录为空或未指定时使用的维度
	GeneralCriterion = "General"

	// TransportTextLimit 接口返回的 rawText 最大字符数
	TransportTextLimit = 5000
)

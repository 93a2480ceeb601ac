package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// ResumeModulePrefix 简历模块
	ResumeModulePrefix = "resume"
	// ApplicationModulePrefix 申请模块
	ApplicationModulePrefix = "application"

	// EntityParsed 解析结果实体
	EntityParsed = "parsed"
	// EntityLock 分布式锁实体
	EntityLock = "lock"

	// KeyParsedResume 按文件MD5缓存的解析结果 (STRING, JSON)
	// 格式: app:resume:parsed:{md5}
	KeyParsedResume = AppPrefix + ":" + ResumeModulePrefix + ":" + EntityParsed + ":%s"

	// KeyResumeEvaluationLock 单个申请的简历评估锁 (STRING)
	// 格式: app:application:lock:{applicationID}
	KeyResumeEvaluationLock = AppPrefix + ":" + ApplicationModulePrefix + ":" + EntityLock + ":%s"
)

package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

// 命令行参数定义
var (
	inputFile   = pflag.StringP("file", "f", "", "简历文件路径 (必填)，支持 PDF、DOCX、DOC、TXT")
	mimeType    = pflag.String("mime", "", "声明的 MIME 类型，为空时按扩展名和文件头判断")
	maxLen      = pflag.Int("maxlen", 1000, "显示的文本最大长度，设为-1显示全部")
	command     = pflag.String("cmd", "parse", "执行的命令: extract=仅输出规整后的文本, parse=输出完整的结构化 JSON")
	saveFile    = pflag.StringP("out", "o", "", "保存输出到文件")
	pdfBackend  = pflag.String("pdf-backend", "eino", "PDF 提取后端: eino | tika")
	tikaURL     = pflag.String("tika-url", "", "Tika 服务器地址，为空时不使用 Tika")
	phoneRegion = pflag.String("phone-region", "US", "电话号码默认地区")
	maxFileMB   = pflag.Int("max-file-mb", 10, "文件大小上限 (MB)")
)

func main() {
	pflag.Parse()

	if *inputFile == "" {
		fmt.Println("错误: 必须提供简历文件路径。使用 --file 参数。")
		pflag.Usage()
		os.Exit(1)
	}

	switch *command {
	case "extract":
		handleExtractCommand(false)
	case "parse":
		handleExtractCommand(true)
	default:
		fmt.Printf("错误: 未知命令 '%s'。支持的命令: extract, parse\n", *command)
		pflag.Usage()
		os.Exit(1)
	}
}

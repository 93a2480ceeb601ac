package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"hiregenai/internal/logger"
	"hiregenai/internal/normalizer"
	"hiregenai/internal/types"
)

// handleExtractCommand 规整本地文件；asJSON 为 true 时输出完整结构
func handleExtractCommand(asJSON bool) {
	absPath, err := filepath.Abs(*inputFile)
	if err != nil {
		fmt.Printf("无法获取文件的绝对路径: %v\n", err)
		os.Exit(1)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		fmt.Printf("无法读取文件 %s: %v\n", absPath, err)
		os.Exit(1)
	}

	// 添加超时以防止无限等待
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	logger.Init(logger.Config{Level: "warn", Format: "pretty"})
	opts := []normalizer.Option{
		normalizer.WithMaxBytes(int64(*maxFileMB) << 20),
		normalizer.WithPDFBackend(*pdfBackend),
		normalizer.WithPhoneRegion(*phoneRegion),
		normalizer.WithLogger(logger.Component(logger.Logger, "normalizer")),
	}
	if *tikaURL != "" {
		opts = append(opts, normalizer.WithTika(*tikaURL, 60*time.Second))
	}
	n, err := normalizer.NewNormalizer(ctx, opts...)
	if err != nil {
		fmt.Printf("创建规整器失败: %v\n", err)
		os.Exit(1)
	}
	if int64(len(data)) > n.MaxBytes() {
		fmt.Printf("文件超过 %d MB 上限\n", *maxFileMB)
		os.Exit(1)
	}

	format := normalizer.DetectFormat(*mimeType, absPath)
	if format == normalizer.FormatUnknown {
		format = normalizer.SniffFormat(data)
	}
	fmt.Fprintf(os.Stderr, "准备处理文件: %s (格式: %s)\n", absPath, format)

	startTime := time.Now()
	doc := n.ParseNamed(ctx, data, *mimeType, filepath.Base(absPath))
	fmt.Fprintf(os.Stderr, "处理完成! 耗时: %v\n", time.Since(startTime))

	var output string
	if asJSON {
		b, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			fmt.Printf("序列化结果失败: %v\n", err)
			os.Exit(1)
		}
		output = string(b)
		fmt.Println(output)
	} else {
		output = doc.RawText
		printText(doc)
	}

	if *saveFile != "" {
		if err := os.WriteFile(*saveFile, []byte(output), 0644); err != nil {
			fmt.Printf("保存到文件失败: %v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "结果已保存到: %s\n", *saveFile)
		}
	}
}

func printText(doc types.ParsedDocument) {
	runes := []rune(doc.RawText)
	fmt.Printf("\n===== 规整后的文本 (总计 %d 字符) =====\n", len(runes))
	if len(runes) == 0 {
		fmt.Println("(未能提取到文本)")
		return
	}
	if *maxLen >= 0 && len(runes) > *maxLen {
		fmt.Println(string(runes[:*maxLen]) + "...(已截断，使用 --maxlen 参数显示更多)")
	} else {
		fmt.Println(doc.RawText)
	}

	fmt.Println("\n===== 识别的字段 =====")
	fmt.Printf("姓名: %s\n邮箱: %s\n电话: %s\n", doc.Name, doc.Email, doc.Phone)
	fmt.Printf("技能: %v\n", doc.Skills)
	fmt.Printf("工作经历: %d 段, 教育经历: %d 段\n", len(doc.Experience), len(doc.Education))
}

package validator

import "strings"

// imageExtensions 允许采集的图片扩展名（区分大小写）
var imageExtensions = []string{".jpg", ".jpeg", ".png"}

// IsImageFilename 根据文件名后缀判断附件是否为图片
// 仅按文件名判断，不嗅探内容；"photo.PNG" 不匹配
func IsImageFilename(filename string) bool {
	for _, ext := range imageExtensions {
		if strings.HasSuffix(filename, ext) {
			return true
		}
	}
	return false
}

// ImageExtensions 返回允许的扩展名副本
func ImageExtensions() []string {
	exts := make([]string, len(imageExtensions))
	copy(exts, imageExtensions)
	return exts
}

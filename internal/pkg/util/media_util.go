package util

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/disintegration/imaging"
)

// GetSafeContentType 读取文件头嗅探真实类型，不信任客户端声明
// reader 需要支持 Seek，嗅探后游标会被还原到起点
func GetSafeContentType(reader io.ReadSeeker) (string, error) {
	buf := make([]byte, 512)
	n, err := reader.Read(buf)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("读取文件头失败: %w", err)
	}
	if _, err = reader.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("重置文件游标失败: %w", err)
	}
	return http.DetectContentType(buf[:n]), nil
}

// GetImageDimensions 解码图片获取宽高
func GetImageDimensions(data []byte) (int, int, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("图片解码失败: %w", err)
	}
	bounds := img.Bounds()
	return bounds.Dx(), bounds.Dy(), nil
}

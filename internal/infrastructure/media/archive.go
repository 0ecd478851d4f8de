// Package media готовит файлы для внешних сервисов: zip с фото для обучения
// и перекодирование видео под лимит Telegram.
package media

import (
	"archive/zip"
	"bytes"
	"fmt"
	"path"
	"strings"
	"time"
)

// NamedFile файл для архива
type NamedFile struct {
	Name string
	Data []byte
}

// BuildArchive собирает zip из фото. Одинаковые имена получают суффикс.
func BuildArchive(files []NamedFile) (*bytes.Buffer, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("нет файлов для архива")
	}

	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	used := make(map[string]int, len(files))

	for i, f := range files {
		name := sanitizeName(f.Name, i)
		if n := used[name]; n > 0 {
			ext := path.Ext(name)
			name = fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), n, ext)
		}
		used[name]++

		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Store, // jpeg уже сжат
			Modified: time.Now().UTC(),
		})
		if err != nil {
			return nil, fmt.Errorf("ошибка записи %s в архив: %w", name, err)
		}
		if _, err := w.Write(f.Data); err != nil {
			return nil, fmt.Errorf("ошибка записи %s в архив: %w", name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("ошибка закрытия архива: %w", err)
	}
	return buf, nil
}

func sanitizeName(name string, i int) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = fmt.Sprintf("photo_%02d.jpg", i+1)
	}
	if path.Ext(name) == "" {
		name += ".jpg"
	}
	return name
}

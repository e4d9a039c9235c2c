package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/vault/internal/common"
)

// DocumentMeta describes a processed document. The extracted text, summary
// and entities come from an external extractor and are all sensitive, as is
// the original path on disk.
type DocumentMeta struct {
	Meta

	Filename    string
	FileType    string
	ProcessedAt time.Time

	FilePath string
	Content  string
	Summary  string
	Entities string
}

func (*DocumentMeta) sealed() {}

func (d *DocumentMeta) Validate() error {
	if strings.TrimSpace(d.Filename) == "" {
		return fmt.Errorf("%w: filename is required", common.ErrValidation)
	}
	if strings.TrimSpace(d.FileType) == "" {
		return fmt.Errorf("%w: file type is required", common.ErrValidation)
	}
	return nil
}

func (d *DocumentMeta) Plain() map[string]string {
	return map[string]string{
		"filename":     d.Filename,
		"file_type":    d.FileType,
		"processed_at": FormatTime(d.ProcessedAt),
	}
}

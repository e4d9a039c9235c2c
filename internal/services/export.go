package services

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/vault/internal/common"
	"github.com/dmitrijs2005/vault/internal/dbx"
	"github.com/dmitrijs2005/vault/internal/filex"
	"github.com/dmitrijs2005/vault/internal/models"
)

// Format is an export artifact format.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// TargetAll exports every module.
const TargetAll = "all"

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatCSV, FormatXLSX:
		return f, nil
	}
	return "", fmt.Errorf("%w: unknown export format %q", common.ErrValidation, s)
}

// ExportService writes decrypted snapshots of the store to files. It is the
// only path by which plaintext leaves the process.
type ExportService interface {
	Export(ctx context.Context, target string, format Format) (string, error)
}

type exportService struct {
	d       Deps
	records RecordService
	audit   AuditService
	dir     string
}

func NewExportService(d Deps, records RecordService, audit AuditService, dir string) ExportService {
	return &exportService{d: d, records: records, audit: audit, dir: dir}
}

type moduleData struct {
	module  models.Module
	records []models.Record
}

func exportTargets(target string) ([]models.Module, error) {
	if strings.EqualFold(strings.TrimSpace(target), TargetAll) {
		return models.Modules(), nil
	}
	m, err := models.ParseModule(target)
	if err != nil {
		return nil, err
	}
	return []models.Module{m}, nil
}

// Export reads every targeted record through RecordService, so each read is
// audited, writes the artifact to a temporary file, commits the export entry
// and only then moves the file to its final name.
func (s *exportService) Export(ctx context.Context, target string, format Format) (string, error) {
	modules, err := exportTargets(target)
	if err != nil {
		return "", err
	}
	if _, err := ParseFormat(string(format)); err != nil {
		return "", err
	}
	label := TargetAll
	if len(modules) == 1 && !strings.EqualFold(target, TargetAll) {
		label = string(modules[0])
	}

	data, err := s.collect(ctx, modules)
	if err != nil {
		return "", err
	}

	tmp, err := filex.CreateAtomic(s.dir, ".export-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create export file: %w", err)
	}
	defer tmp.Abort()

	now := s.d.now()
	var ext string
	switch format {
	case FormatJSON:
		ext = "json"
		err = writeJSON(tmp, data, now)
	case FormatCSV:
		if len(data) == 1 {
			ext = "csv"
			err = writeCSV(tmp, data[0])
		} else {
			ext = "tar.gz"
			err = writeCSVArchive(tmp, data, now)
		}
	case FormatXLSX:
		ext = "xlsx"
		err = writeXLSX(tmp, data)
	}
	if err != nil {
		return "", fmt.Errorf("failed to write %s export: %w", format, err)
	}
	if err := tmp.Finish(); err != nil {
		return "", err
	}

	count := 0
	details := map[string]string{"target": label, "format": string(format)}
	for _, md := range data {
		count += len(md.records)
		details["count_"+string(md.module)] = strconv.Itoa(len(md.records))
	}
	details["count"] = strconv.Itoa(count)

	auditModule := models.ModuleSystem
	if label != TargetAll {
		auditModule = modules[0]
	}
	if err := s.appendExport(ctx, auditModule, details); err != nil {
		return "", err
	}

	suffix, err := common.MakeRandHexString(3)
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("vault-%s-%s-%s.%s", label, now.Format("20060102-150405"), suffix, ext)
	path := filepath.Join(s.dir, name)
	if err := tmp.Commit(path); err != nil {
		return "", fmt.Errorf("failed to finalize export: %w", err)
	}

	s.d.committed(auditModule, models.ActionExport)
	s.d.Metrics.Exported(string(format), count)
	s.d.Log.Info(ctx, "export written", "target", label, "format", format, "count", count)
	return path, nil
}

func (s *exportService) appendExport(ctx context.Context, m models.Module, details map[string]string) error {
	unlock := s.d.Locks.Read()
	defer unlock()

	return s.d.Runner.Do(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		return s.audit.Append(ctx, tx, &models.AuditEntry{Module: m, Action: models.ActionExport, Details: details})
	})
}

// collect reads the modules concurrently. Any read error, including a
// single record failing authentication, aborts the export.
func (s *exportService) collect(ctx context.Context, modules []models.Module) ([]moduleData, error) {
	out := make([]moduleData, len(modules))
	g, gctx := errgroup.WithContext(ctx)
	for i, m := range modules {
		g.Go(func() error {
			md := moduleData{module: m}
			for rec, err := range s.records.List(gctx, m, models.ListFilter{}) {
				if err != nil {
					return err
				}
				md.records = append(md.records, rec)
			}
			out[i] = md
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// table is the flat view of one module shared by the CSV and XLSX writers.
type table struct {
	header []string
	rows   [][]string
}

func plainKeys(m models.Module) []string {
	rec, _ := models.New(m)
	keys := make([]string, 0)
	for k := range rec.Plain() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func exportValue(rec models.Record, f models.Field) string {
	if f == models.FieldSearchTerms {
		return strings.Join(rec.Envelope().SearchTerms, "; ")
	}
	v, _ := models.SensitiveValue(rec, f)
	return v
}

func flatten(md moduleData) table {
	keys := plainKeys(md.module)
	fields := models.SensitiveFields(md.module)

	t := table{header: []string{"id", "created_at", "is_favorite", "tags"}}
	t.header = append(t.header, keys...)
	for _, f := range fields {
		t.header = append(t.header, string(f))
	}

	for _, rec := range md.records {
		env := rec.Envelope()
		row := []string{
			strconv.FormatInt(env.ID, 10),
			models.FormatTime(env.CreatedAt),
			strconv.FormatBool(env.IsFavorite),
			strings.Join(env.Tags, ", "),
		}
		plain := rec.Plain()
		for _, k := range keys {
			row = append(row, plain[k])
		}
		for _, f := range fields {
			row = append(row, exportValue(rec, f))
		}
		t.rows = append(t.rows, row)
	}
	return t
}

type jsonRecord struct {
	ID         int64             `json:"id"`
	CreatedAt  string            `json:"created_at"`
	IsFavorite bool              `json:"is_favorite"`
	Tags       []string          `json:"tags"`
	Metadata   map[string]string `json:"metadata"`
	Fields     map[string]string `json:"fields"`
}

type jsonExport struct {
	ExportedAt string                         `json:"exported_at"`
	Modules    map[models.Module][]jsonRecord `json:"modules"`
}

func writeJSON(w io.Writer, data []moduleData, now time.Time) error {
	doc := jsonExport{ExportedAt: models.FormatTime(now), Modules: make(map[models.Module][]jsonRecord, len(data))}
	for _, md := range data {
		recs := make([]jsonRecord, 0, len(md.records))
		for _, rec := range md.records {
			env := rec.Envelope()
			jr := jsonRecord{
				ID:         env.ID,
				CreatedAt:  models.FormatTime(env.CreatedAt),
				IsFavorite: env.IsFavorite,
				Tags:       append([]string{}, env.Tags...),
				Metadata:   rec.Plain(),
				Fields:     make(map[string]string),
			}
			for _, f := range models.SensitiveFields(md.module) {
				if v := exportValue(rec, f); v != "" {
					jr.Fields[string(f)] = v
				}
			}
			recs = append(recs, jr)
		}
		doc.Modules[md.module] = recs
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func writeCSV(w io.Writer, md moduleData) error {
	t := flatten(md)
	cw := csv.NewWriter(w)
	if err := cw.Write(t.header); err != nil {
		return err
	}
	if err := cw.WriteAll(t.rows); err != nil {
		return err
	}
	return cw.Error()
}

// writeCSVArchive writes one <module>.csv per module into a gzipped tar.
func writeCSVArchive(w io.Writer, data []moduleData, now time.Time) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	for _, md := range data {
		var buf bytes.Buffer
		if err := writeCSV(&buf, md); err != nil {
			return err
		}
		hdr := &tar.Header{
			Name:    string(md.module) + ".csv",
			Mode:    0o600,
			Size:    int64(buf.Len()),
			ModTime: now,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if _, err := tw.Write(buf.Bytes()); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

var sheetNames = map[models.Module]string{
	models.ModuleJournal:   "Journal",
	models.ModuleFinance:   "Transactions",
	models.ModuleDocuments: "Documents",
}

// writeXLSX writes one sheet per module.
func writeXLSX(w io.Writer, data []moduleData) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	const defaultSheet = "Sheet1"
	for _, md := range data {
		name := sheetNames[md.module]
		if _, err := f.NewSheet(name); err != nil {
			return err
		}

		t := flatten(md)
		if err := setRow(f, name, 1, t.header); err != nil {
			return err
		}
		for i, row := range t.rows {
			if err := setRow(f, name, i+2, row); err != nil {
				return err
			}
		}
	}

	if err := f.DeleteSheet(defaultSheet); err != nil {
		return err
	}
	if idx, err := f.GetSheetIndex(sheetNames[data[0].module]); err == nil {
		f.SetActiveSheet(idx)
	}
	return f.Write(w)
}

func setRow(f *excelize.File, sheet string, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	vals := make([]any, len(values))
	for i, v := range values {
		vals[i] = v
	}
	return f.SetSheetRow(sheet, cell, &vals)
}

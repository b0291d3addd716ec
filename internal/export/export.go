package export

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/charmbracelet/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"greenweb/internal/config"
	"greenweb/internal/database"
	"greenweb/internal/domain"
	"greenweb/internal/metrics"
)

const (
	snapshotBatchSize = 1000
	defaultWorkDir    = "data/exports"
)

var ErrNoBucket = errors.New("export: no bucket configured")

// Uploader is the part of the S3 upload manager the exporter needs.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// snapshotRow is the greendomain table of the exported SQLite file.
type snapshotRow struct {
	ID              uint64 `gorm:"primaryKey"`
	URL             string `gorm:"column:url;uniqueIndex"`
	HostedBy        string
	HostedByID      uint64
	HostedByWebsite string
	Partner         string
	Green           bool
	Modified        time.Time
}

func (snapshotRow) TableName() string { return "greendomain" }

// Summary describes one finished export.
type Summary struct {
	Domains int      `json:"domains"`
	Keys    []string `json:"keys"`
}

// Exporter writes green domain snapshots and uploads them to object storage.
type Exporter struct {
	uploader Uploader
	bucket   string
	prefix   string
	workDir  string
	now      func() time.Time
}

func New(uploader Uploader, bucket, prefix, workDir string) *Exporter {
	if workDir == "" {
		workDir = defaultWorkDir
	}
	return &Exporter{uploader: uploader, bucket: bucket, prefix: prefix, workDir: workDir, now: time.Now}
}

// NewFromConfig builds an exporter using the default AWS credential chain and
// the export section of the settings. A custom endpoint switches to path-style
// addressing for S3 compatible stores.
func NewFromConfig(ctx context.Context, cfg config.Config) (*Exporter, error) {
	settings := cfg.Export
	if strings.TrimSpace(settings.Bucket) == "" {
		return nil, ErrNoBucket
	}

	var opts []func(*awsconfig.LoadOptions) error
	if settings.Region != "" {
		opts = append(opts, awsconfig.WithRegion(settings.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("export: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if settings.Endpoint != "" {
			o.BaseEndpoint = aws.String(settings.Endpoint)
			o.UsePathStyle = true
		}
	})

	return New(manager.NewUploader(client), settings.Bucket, settings.Prefix, settings.WorkDir), nil
}

// SnapshotName is the file name of the snapshot taken on day.
func SnapshotName(day time.Time) string {
	return fmt.Sprintf("green_urls_%s.db", day.Format(time.DateOnly))
}

// Export dumps every green domain into a dated SQLite file, compresses it,
// uploads both files and removes them locally.
func (e *Exporter) Export(ctx context.Context) (Summary, error) {
	summary, err := e.export(ctx)
	if err != nil {
		metrics.ExportRuns.WithLabelValues("failed").Inc()
		return summary, err
	}
	metrics.ExportRuns.WithLabelValues("succeeded").Inc()
	log.Info("Green domain export completed", "domains", summary.Domains, "bucket", e.bucket, "keys", summary.Keys)
	return summary, nil
}

func (e *Exporter) export(ctx context.Context) (Summary, error) {
	var summary Summary

	if err := os.MkdirAll(e.workDir, 0o755); err != nil {
		return summary, fmt.Errorf("export: create work dir: %w", err)
	}

	dbPath := filepath.Join(e.workDir, SnapshotName(e.now().UTC()))
	gzPath := dbPath + ".gz"
	// Leftovers from an interrupted run would otherwise be appended to.
	if err := DeleteFiles(dbPath, gzPath); err != nil {
		return summary, err
	}
	defer func() {
		if err := DeleteFiles(dbPath, gzPath); err != nil {
			log.Warn("Failed to clean up export files", "error", err)
		}
	}()

	count, err := writeSnapshot(ctx, dbPath)
	if err != nil {
		return summary, err
	}
	summary.Domains = count

	if err := compressFile(dbPath, gzPath); err != nil {
		return summary, err
	}

	for _, local := range []string{dbPath, gzPath} {
		key, err := e.upload(ctx, local)
		if err != nil {
			return summary, err
		}
		summary.Keys = append(summary.Keys, key)
	}
	return summary, nil
}

func writeSnapshot(ctx context.Context, dbPath string) (int, error) {
	snapshot, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return 0, fmt.Errorf("export: open snapshot: %w", err)
	}
	sqlDB, err := snapshot.DB()
	if err != nil {
		return 0, fmt.Errorf("export: snapshot handle: %w", err)
	}
	defer sqlDB.Close()

	if err := snapshot.AutoMigrate(&snapshotRow{}); err != nil {
		return 0, fmt.Errorf("export: create snapshot table: %w", err)
	}

	count := 0
	err = database.EachGreenDomain(ctx, snapshotBatchSize, func(batch []domain.GreenDomain) error {
		rows := make([]snapshotRow, 0, len(batch))
		for _, gd := range batch {
			rows = append(rows, snapshotRow{
				URL:             gd.URL,
				HostedBy:        gd.HostedBy,
				HostedByID:      gd.HostedByID,
				HostedByWebsite: gd.HostedByWebsite,
				Partner:         gd.Partner,
				Green:           gd.Green,
				Modified:        gd.Modified,
			})
		}
		count += len(rows)
		return snapshot.WithContext(ctx).CreateInBatches(&rows, snapshotBatchSize).Error
	})
	if err != nil {
		return count, fmt.Errorf("export: copy green domains: %w", err)
	}
	return count, nil
}

func compressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("export: open snapshot: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("export: create archive: %w", err)
	}

	gz := gzip.NewWriter(out)
	gz.Name = filepath.Base(src)
	if _, err := io.Copy(gz, in); err != nil {
		out.Close()
		return fmt.Errorf("export: compress snapshot: %w", err)
	}
	if err := gz.Close(); err != nil {
		out.Close()
		return fmt.Errorf("export: compress snapshot: %w", err)
	}
	return out.Close()
}

func (e *Exporter) upload(ctx context.Context, local string) (string, error) {
	file, err := os.Open(local)
	if err != nil {
		return "", fmt.Errorf("export: open %s: %w", local, err)
	}
	defer file.Close()

	key := path.Join(e.prefix, filepath.Base(local))
	contentType := "application/vnd.sqlite3"
	if strings.HasSuffix(local, ".gz") {
		contentType = "application/gzip"
	}

	_, err = e.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("export: upload %s: %w", key, err)
	}
	return key, nil
}

// DeleteFiles removes paths. Missing files are ignored; anything else that
// cannot be removed is reported in a single error naming every such path.
func DeleteFiles(paths ...string) error {
	var failed []string
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			failed = append(failed, fmt.Sprintf("%q", p))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("export: failed to remove these files: %s", strings.Join(failed, ", "))
	}
	return nil
}

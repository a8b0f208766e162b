package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"fiunum/pkg/logger"
)

// CompressionAlgo specifies the compression algorithm used.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// AuditEntry is one reservation lifecycle event.
// Actions: reserve, use, cancel, release, cleanup.
type AuditEntry struct {
	ID                 int64           `db:"audit_id"`
	Action             string          `db:"action"`
	ReportNumber       string          `db:"report_number"`
	SerialNumber       int64           `db:"serial_number"`
	Username           string          `db:"username"`
	Details            json.RawMessage `db:"details"`
	DetailsCompressed  []byte          `db:"details_compressed"`
	CompressionAlgo    CompressionAlgo `db:"compression_algo"`
	CreatedAt          time.Time       `db:"created_at"`
}

// AuditService records reservation lifecycle events to reservation_audit.
// Writes are best-effort: a failed audit insert is logged and never fails
// the reservation operation it describes.
type AuditService struct {
	txManager         *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

// NewAuditService creates a new audit service.
func NewAuditService(txManager *TxManager) (*AuditService, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &AuditService{
		txManager:         txManager,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: 10 * 1024,
	}, nil
}

// Record implements the reservation auditor contract.
func (s *AuditService) Record(ctx context.Context, action, reportNumber string, serial int64, username string, details map[string]any) {
	entry := AuditEntry{
		Action:       action,
		ReportNumber: reportNumber,
		SerialNumber: serial,
		Username:     username,
		CreatedAt:    time.Now().UTC(),
	}

	if len(details) > 0 {
		raw, err := json.Marshal(details)
		if err != nil {
			logger.Warn(ctx, "audit details not serializable", "action", action, "error", err)
		} else {
			entry.Details = raw
		}
	}

	if err := s.insert(ctx, entry); err != nil {
		logger.Error(ctx, "audit write failed",
			"action", action,
			"report_number", reportNumber,
			"error", err)
	}
}

func (s *AuditService) insert(ctx context.Context, entry AuditEntry) error {
	entry.CompressionAlgo = CompressionNone
	if len(entry.Details) > s.compressThreshold {
		entry.DetailsCompressed = s.encoder.EncodeAll(entry.Details, nil)
		entry.Details = nil
		entry.CompressionAlgo = CompressionZstd
	}

	sql := `
		INSERT INTO reservation_audit (
			action, report_number, serial_number, username,
			details, details_compressed, compression_algo, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	querier := s.txManager.GetQuerier(ctx)
	_, err := querier.Exec(ctx, sql,
		entry.Action, entry.ReportNumber, entry.SerialNumber, entry.Username,
		entry.Details, entry.DetailsCompressed, entry.CompressionAlgo,
		entry.CreatedAt,
	)
	return err
}

// Decompress returns the original details payload for a stored entry.
func (s *AuditService) Decompress(entry AuditEntry) (json.RawMessage, error) {
	switch entry.CompressionAlgo {
	case CompressionZstd:
		raw, err := s.decoder.DecodeAll(entry.DetailsCompressed, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress audit details: %w", err)
		}
		return raw, nil
	default:
		return entry.Details, nil
	}
}

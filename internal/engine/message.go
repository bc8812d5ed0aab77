package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/CZERTAINLY/massscan/internal/model"
)

// Message types sent by the engine over the structured channel.
const (
	MsgScanData    = "scanData"
	MsgScanSummary = "scanSummary"
	MsgZipFileName = "zipFileName"
)

// Envelope is one line of the structured channel.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Sink receives everything a running job produces. Implementations must be
// safe for concurrent use, every job writes from its own goroutines.
type Sink interface {
	AddResult(model.ScanResultRecord)
	AddError(model.ScanErrorRecord)
	AddSummary(scanType, url string, lines []string)
	SetZipFileName(name string)
}

func (p *Process) handleMessage(ctx context.Context, line []byte) {
	var env Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		p.malformed(ctx, "", err)
		return
	}

	switch env.Type {
	case MsgScanData:
		var rec model.ScanResultRecord
		if err := json.Unmarshal(env.Payload, &rec); err != nil {
			p.malformed(ctx, env.Type, err)
			return
		}
		rec.ID = p.job.ID
		rec.URL = p.job.URL
		p.sink.AddResult(rec)
		slog.DebugContext(ctx, "scan data received")
	case MsgScanSummary:
		var lines []string
		if err := json.Unmarshal(env.Payload, &lines); err != nil {
			p.malformed(ctx, env.Type, err)
			return
		}
		p.sink.AddSummary(p.job.ScanType, p.job.URL, lines)
	case MsgZipFileName:
		var name string
		if err := json.Unmarshal(env.Payload, &name); err != nil {
			p.malformed(ctx, env.Type, err)
			return
		}
		p.sink.SetZipFileName(name)
	default:
		slog.DebugContext(ctx, "ignoring unknown message", "type", env.Type)
	}
}

func (p *Process) malformed(ctx context.Context, typ string, err error) {
	msg := fmt.Sprintf("malformed %s message: %v", typ, err)
	if typ == "" {
		msg = fmt.Sprintf("malformed message: %v", err)
	}
	slog.WarnContext(ctx, "malformed message from scan engine", "type", typ, "error", err)
	p.sink.AddError(model.NewErrorRecord(p.job, msg))
}

package workflows

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/asterixix/tecza/internal/audit"
	kerrors "github.com/asterixix/tecza/internal/errors"
)

const (
	auditTimeLayout = "2006-01-02T15:04:05.000000Z"
	dateLayout      = "2006-01-02"
)

// LogOptions configures the log workflow.
type LogOptions struct {
	Home string

	// Limit is the maximum number of entries to return. 0 means no limit.
	Limit int

	// Reverse orders entries from most recent to oldest.
	Reverse bool

	// Identity filters entries by the acting identity.
	Identity string

	// Conversation filters entries by conversation ID.
	Conversation string

	// Operations filters entries by operation (comma-separated).
	Operations string

	// Since and Until bound entries by date (YYYY-MM-DD), inclusive.
	Since string
	Until string
}

// LogResult contains the outcome of a log query.
type LogResult struct {
	Path    string
	Entries []audit.Entry

	// TotalEntriesBeforeFilter is the count of entries before filtering.
	TotalEntriesBeforeFilter int
}

// Log reads and filters the audit trail. A missing trail yields no
// entries.
//
// Returns ErrInvalidDateFormat if a date bound is malformed.
func Log(ctx context.Context, opts LogOptions) (*LogResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	settings, err := resolveSettings(opts.Home)
	if err != nil {
		return nil, fmt.Errorf("resolving settings: %w", err)
	}

	trail := audit.NewTrail(settings.AuditPath())
	entries, err := trail.ReadEntries()
	if err != nil {
		return nil, fmt.Errorf("reading audit log: %w", err)
	}

	result := &LogResult{
		Path:                     trail.Path(),
		TotalEntriesBeforeFilter: len(entries),
	}

	var keep []func(audit.Entry) bool

	if opts.Identity != "" {
		keep = append(keep, func(e audit.Entry) bool {
			return strings.EqualFold(e.Identity, opts.Identity)
		})
	}
	if opts.Conversation != "" {
		keep = append(keep, func(e audit.Entry) bool {
			return strings.EqualFold(e.ConversationID, opts.Conversation)
		})
	}
	if opts.Operations != "" {
		ops := make(map[string]bool)
		for _, op := range strings.Split(opts.Operations, ",") {
			ops[strings.ToLower(strings.TrimSpace(op))] = true
		}
		keep = append(keep, func(e audit.Entry) bool {
			return ops[strings.ToLower(e.Operation)]
		})
	}
	if opts.Since != "" {
		since, err := time.Parse(dateLayout, opts.Since)
		if err != nil {
			return nil, fmt.Errorf("%w: --since must be YYYY-MM-DD", kerrors.ErrInvalidDateFormat)
		}
		keep = append(keep, func(e audit.Entry) bool {
			t, ok := parseTimestamp(e.Timestamp)
			return ok && !t.Before(since)
		})
	}
	if opts.Until != "" {
		until, err := time.Parse(dateLayout, opts.Until)
		if err != nil {
			return nil, fmt.Errorf("%w: --until must be YYYY-MM-DD", kerrors.ErrInvalidDateFormat)
		}
		// Include the whole day.
		until = until.Add(24*time.Hour - time.Nanosecond)
		keep = append(keep, func(e audit.Entry) bool {
			t, ok := parseTimestamp(e.Timestamp)
			return ok && !t.After(until)
		})
	}

	filtered := make([]audit.Entry, 0, len(entries))
outer:
	for _, e := range entries {
		for _, fn := range keep {
			if !fn(e) {
				continue outer
			}
		}
		filtered = append(filtered, e)
	}

	if opts.Reverse {
		for i, j := 0, len(filtered)-1; i < j; i, j = i+1, j-1 {
			filtered[i], filtered[j] = filtered[j], filtered[i]
		}
	}

	// The limit always keeps the most recent entries.
	if opts.Limit > 0 && len(filtered) > opts.Limit {
		if opts.Reverse {
			filtered = filtered[:opts.Limit]
		} else {
			filtered = filtered[len(filtered)-opts.Limit:]
		}
	}

	result.Entries = filtered
	return result, nil
}

func parseTimestamp(ts string) (time.Time, bool) {
	t, err := time.Parse(auditTimeLayout, ts)
	if err != nil {
		t, err = time.Parse(time.RFC3339, ts)
	}
	return t, err == nil
}

// FormatDateTime renders an audit timestamp as "2006-01-02 15:04:05".
func FormatDateTime(ts string) string {
	t, ok := parseTimestamp(ts)
	if !ok {
		return ts
	}
	return t.Format("2006-01-02 15:04:05")
}

// FormatDetails summarises the operation-specific fields of an entry.
func FormatDetails(e audit.Entry) string {
	switch e.Operation {
	case audit.OpKeygen, audit.OpKeyImport:
		return e.Fingerprint
	case audit.OpVaultExport, audit.OpVaultImport:
		return e.Path
	case audit.OpConversationCreate:
		return fmt.Sprintf("%s (%d wrapped, %d raw)", e.ConversationID, e.WrappedCount, e.RawCount)
	case audit.OpGrant:
		return fmt.Sprintf("%s -> %s (%s)", e.ConversationID, e.Target, e.Method)
	case audit.OpMigrate:
		return fmt.Sprintf("%s (%d migrated, %d still raw)", e.ConversationID, e.WrappedCount, e.RawCount)
	default:
		return ""
	}
}

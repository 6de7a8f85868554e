package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"tally/internal/core"
	"tally/internal/log"
	"tally/internal/sheets"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	loc           *time.Location
	logger        *log.Logger

	// Concurrent mirrors of one user must not both add the same tab.
	tabGroup singleflight.Group
	mu       sync.Mutex
	tabs     map[string]bool
}

// Ensure interface conformance
var _ sheets.RecordMirror = (*Client)(nil)

// Credentials names where the service account key comes from. JSON wins
// over File.
type Credentials struct {
	JSON string
	File string
}

// Load returns the key bytes.
func (c Credentials) Load() ([]byte, error) {
	switch {
	case strings.TrimSpace(c.JSON) != "":
		return []byte(c.JSON), nil
	case strings.TrimSpace(c.File) != "":
		data, err := os.ReadFile(c.File)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}
}

// New creates a Sheets client authenticated as a service account.
func New(ctx context.Context, spreadsheetID string, creds Credentials, loc *time.Location, logger *log.Logger) (*Client, error) {
	credentialsJSON, err := creds.Load()
	if err != nil {
		return nil, err
	}
	return NewWithOptions(ctx, spreadsheetID, loc, logger,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
}

// NewWithOptions creates a client with explicit API options, e.g. a test
// endpoint.
func NewWithOptions(ctx context.Context, spreadsheetID string, loc *time.Location, logger *log.Logger, opts ...goption.ClientOption) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if logger == nil {
		logger = log.FromContext(ctx)
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		loc:           loc,
		logger:        logger.WithComponent(log.ComponentSheets),
		tabs:          make(map[string]bool),
	}, nil
}

// MirrorRecords overwrites the user's tab with the header and one row per
// record.
func (c *Client) MirrorRecords(ctx context.Context, userID string, records []core.ExpenseRecord) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	tab := sheets.TabName(userID)
	if err := c.ensureTab(ctx, tab); err != nil {
		return err
	}

	ref := quoteTab(tab)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, ref+"!A:F", &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", tab, err)
	}

	rows := sheets.Rows(records, c.loc)
	vr := &gsheet.ValueRange{Values: rows}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, ref+"!A1", vr).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("write %s: %w", tab, err)
	}

	c.logger.InfoContext(ctx, "Mirrored records to sheet",
		log.FieldUserID, userID,
		log.FieldSheetTab, tab,
		log.FieldRecordCount, len(records))
	return nil
}

// ensureTab adds the tab unless the spreadsheet already has it.
func (c *Client) ensureTab(ctx context.Context, tab string) error {
	c.mu.Lock()
	known := c.tabs[tab]
	c.mu.Unlock()
	if known {
		return nil
	}

	_, err, _ := c.tabGroup.Do(tab, func() (any, error) {
		ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("get spreadsheet: %w", err)
		}
		for _, sh := range ss.Sheets {
			if sh.Properties != nil && sh.Properties.Title == tab {
				c.remember(tab)
				return nil, nil
			}
		}

		req := &gsheet.BatchUpdateSpreadsheetRequest{
			Requests: []*gsheet.Request{{
				AddSheet: &gsheet.AddSheetRequest{
					Properties: &gsheet.SheetProperties{Title: tab},
				},
			}},
		}
		if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
			return nil, fmt.Errorf("add sheet %s: %w", tab, err)
		}
		c.logger.InfoContext(ctx, "Created sheet tab", log.FieldSheetTab, tab)
		c.remember(tab)
		return nil, nil
	})
	return err
}

func (c *Client) remember(tab string) {
	c.mu.Lock()
	c.tabs[tab] = true
	c.mu.Unlock()
}

// quoteTab quotes a title for A1 notation.
func quoteTab(tab string) string {
	return "'" + strings.ReplaceAll(tab, "'", "''") + "'"
}

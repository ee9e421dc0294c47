package feedback

import (
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/proposal-cli/internal/model"
)

// RowError describes one spreadsheet row that could not be turned into a
// feedback input. Row is 1-based as shown in spreadsheet software.
type RowError struct {
	Row int
	Err error
}

// ParseXLSX reads historical feedback from a spreadsheet export. The first
// row must be a header naming at least user_id and proposal_id; recognized
// optional columns are tenant_id, rating, was_edited, edit_magnitude,
// outcome, outcome_at, and proposal_at. Column order is free and unknown
// columns are ignored. Rows that fail to parse are reported, not fatal, so
// one bad row never sinks a whole import.
func ParseXLSX(path string) ([]model.FeedbackInput, []RowError, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, nil, eris.Wrap(err, "feedback: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, nil, eris.New("feedback: xlsx has no sheets")
	}
	sheet := f.Sheets[0]
	if len(sheet.Rows) == 0 {
		return nil, nil, eris.New("feedback: xlsx sheet is empty")
	}

	cols := headerIndex(sheet.Rows[0])
	if _, ok := cols["user_id"]; !ok {
		return nil, nil, eris.New("feedback: header row missing user_id column")
	}
	if _, ok := cols["proposal_id"]; !ok {
		return nil, nil, eris.New("feedback: header row missing proposal_id column")
	}

	var (
		inputs []model.FeedbackInput
		bad    []RowError
	)
	for i, row := range sheet.Rows[1:] {
		cells := rowStrings(row)
		if blankRow(cells) {
			continue
		}
		in, err := parseRow(cells, cols)
		if err != nil {
			bad = append(bad, RowError{Row: i + 2, Err: err})
			continue
		}
		inputs = append(inputs, in)
	}
	return inputs, bad, nil
}

func parseRow(cells []string, cols map[string]int) (model.FeedbackInput, error) {
	get := func(name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(cells) {
			return ""
		}
		return strings.TrimSpace(cells[idx])
	}

	in := model.FeedbackInput{
		UserID:     get("user_id"),
		TenantID:   get("tenant_id"),
		ProposalID: get("proposal_id"),
	}
	if in.UserID == "" {
		return in, eris.New("feedback: empty user_id")
	}
	if in.ProposalID == "" {
		return in, eris.New("feedback: empty proposal_id")
	}

	if s := get("rating"); s != "" {
		r, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return in, eris.Wrapf(err, "feedback: bad rating %q", s)
		}
		in.UserRating = &r
	}
	if s := get("was_edited"); s != "" {
		b, err := parseBool(s)
		if err != nil {
			return in, err
		}
		in.WasEdited = b
	}
	if s := get("edit_magnitude"); s != "" {
		m, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return in, eris.Wrapf(err, "feedback: bad edit_magnitude %q", s)
		}
		in.EditMagnitude = &m
		if m > 0 {
			in.WasEdited = true
		}
	}
	if s := strings.ToLower(get("outcome")); s != "" {
		switch model.Outcome(s) {
		case model.OutcomeWon, model.OutcomeLost:
			o := model.Outcome(s)
			in.Outcome = &o
		default:
			return in, eris.Errorf("feedback: unknown outcome %q", s)
		}
	}
	if s := get("outcome_at"); s != "" {
		t, err := parseDate(s)
		if err != nil {
			return in, err
		}
		in.OutcomeAt = &t
	}
	if s := get("proposal_at"); s != "" {
		t, err := parseDate(s)
		if err != nil {
			return in, err
		}
		in.ProposalAt = t
	}
	return in, nil
}

// headerIndex maps normalized header names to column positions. Headers are
// lowercased with spaces collapsed to underscores, so "Edit Magnitude" and
// "edit_magnitude" address the same column.
func headerIndex(row *xlsx.Row) map[string]int {
	cols := make(map[string]int, len(row.Cells))
	for i, cell := range row.Cells {
		name := strings.ToLower(strings.TrimSpace(cell.String()))
		name = strings.ReplaceAll(name, " ", "_")
		if name != "" {
			cols[name] = i
		}
	}
	return cols
}

func rowStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for i, cell := range row.Cells {
		cells[i] = cell.String()
	}
	return cells
}

func blankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "yes", "y", "1":
		return true, nil
	case "false", "no", "n", "0":
		return false, nil
	}
	return false, eris.Errorf("feedback: bad boolean %q", s)
}

var dateLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02", "01/02/2006"}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.Errorf("feedback: unparseable date %q", s)
}

package export

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"lifestory/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const (
	sheetName = "Book"
	firstRow  = 3
)

var columns = []struct {
	title string
	width float64
}{
	{"Date", 18},
	{"Type", 16},
	{"Title", 30},
	{"Text", 80},
	{"Status", 14},
	{"Audio", 40},
}

// BookExporter writes the entries marked for the book into an xlsx workbook.
type BookExporter struct {
	dir    string
	logger *zerolog.Logger
}

func NewBookExporter(dir string, logger *zerolog.Logger) *BookExporter {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &BookExporter{dir: dir, logger: logger}
}

// BookItems returns the addToBook items ordered oldest first.
func BookItems(items []models.TimelineItem) []models.TimelineItem {
	out := make([]models.TimelineItem, 0, len(items))
	for _, item := range items {
		if item.AddToBook {
			out = append(out, item)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Export writes the book workbook and returns its path.
func (e *BookExporter) Export(items []models.TimelineItem, now time.Time) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	entries := BookItems(items)

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return "", fmt.Errorf("error creating sheet: %w", err)
	}

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Life story, %d entries, exported %s", len(entries), now.Format("02.01.2006 15:04")))
	lastCol, _ := excelize.ColumnNumberToName(len(columns))
	_ = f.MergeCell(sheetName, "A1", lastCol+"1")
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	if err := writeHeaders(f); err != nil {
		return "", err
	}

	styles, err := statusStyles(f)
	if err != nil {
		return "", err
	}
	wrap, _ := f.NewStyle(&excelize.Style{Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"}})

	for i, item := range entries {
		row := firstRow + i
		values := []any{
			item.CreatedAt.Local().Format("02.01.2006 15:04"),
			string(item.Type),
			item.Title,
			entryText(item),
			string(item.Status),
			item.AudioURL,
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheetName, cell, value)
		}
		textCell, _ := excelize.CoordinatesToCellName(4, row)
		_ = f.SetCellStyle(sheetName, textCell, textCell, wrap)
		statusCell, _ := excelize.CoordinatesToCellName(5, row)
		_ = f.SetCellStyle(sheetName, statusCell, statusCell, styles.forStatus(item.Status))
	}

	filePath := filepath.Join(e.dir, fmt.Sprintf("book_%s.xlsx", now.Format("2006-01-02_150405")))
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}

	e.logger.Info().Str("file_path", filePath).Int("entries", len(entries)).Msg("book exported")
	return filePath, nil
}

func writeHeaders(f *excelize.File) error {
	style, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("error creating header style: %w", err)
	}
	for i, column := range columns {
		name, _ := excelize.ColumnNumberToName(i + 1)
		cell := name + "2"
		_ = f.SetCellValue(sheetName, cell, column.title)
		_ = f.SetCellStyle(sheetName, cell, cell, style)
		_ = f.SetColWidth(sheetName, name, name, column.width)
	}
	return nil
}

// entryText prefers the typed content and falls back to the transcript.
func entryText(item models.TimelineItem) string {
	if item.Content != "" {
		return item.Content
	}
	return item.Transcript
}

type cellStyles struct {
	done, failed, inFlight int
}

func (s cellStyles) forStatus(status models.ItemStatus) int {
	switch status {
	case models.StatusDone:
		return s.done
	case models.StatusError:
		return s.failed
	default:
		return s.inFlight
	}
}

func statusStyles(f *excelize.File) (cellStyles, error) {
	var styles cellStyles
	for _, fill := range []struct {
		color string
		dst   *int
	}{
		{"#C6EFCE", &styles.done},
		{"#FFC7CE", &styles.failed},
		{"#FFEB9C", &styles.inFlight},
	} {
		id, err := f.NewStyle(&excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Color: []string{fill.color}, Pattern: 1},
			Alignment: &excelize.Alignment{Horizontal: "center"},
		})
		if err != nil {
			return styles, fmt.Errorf("error creating status style: %w", err)
		}
		*fill.dst = id
	}
	return styles, nil
}

// package formatter exports batch reports to various formats (CSV, Markdown, plain text, JSON)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/beatq/internal/models"
	"github.com/desertthunder/beatq/internal/shared"
)

// Supported export formats.
const (
	FormatJSON     = "json"
	FormatCSV      = "csv"
	FormatMarkdown = "markdown"
	FormatText     = "txt"
)

// Formats lists every export format.
var Formats = []string{FormatJSON, FormatCSV, FormatMarkdown, FormatText}

// ExportToCSV converts a batch to CSV with one row per track, in playlist order.
func ExportToCSV(bt *models.BatchWithTracks) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Position", "Title", "Artist", "Album", "Duration", "Status", "Video", "Confidence", "Error", "Retries", "Output"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, track := range bt.Tracks {
		confidence := ""
		if track.MatchConfidence != nil {
			confidence = strconv.FormatFloat(*track.MatchConfidence, 'f', 2, 64)
		}
		record := []string{
			strconv.Itoa(track.Position),
			track.Title,
			track.Artist,
			track.Album,
			strconv.Itoa(track.Duration()),
			string(track.Status),
			track.VideoID,
			confidence,
			string(track.ErrorCode),
			strconv.Itoa(track.RetryCount),
			track.OutputPath,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts a batch to a Markdown report with optional cover image
func ExportToMarkdown(bt *models.BatchWithTracks, imageFilename string) ([]byte, error) {
	var buf bytes.Buffer
	b := bt.Batch

	buf.WriteString(fmt.Sprintf("# %s\n\n", b.SourceName))

	if imageFilename != "" {
		buf.WriteString(fmt.Sprintf("![Cover](%s)\n\n", imageFilename))
	}

	if b.SourceURL != "" {
		buf.WriteString(fmt.Sprintf("**Source**: %s\n\n", b.SourceURL))
	}

	buf.WriteString(fmt.Sprintf("**State**: %s\n", stateLabel(b)))
	buf.WriteString(fmt.Sprintf("**Tracks**: %d (%d completed, %d failed)\n", b.TotalTracks, b.CompletedCount, b.FailedCount))
	buf.WriteString(fmt.Sprintf("**Downloaded**: %s at %s/s\n", shared.FormatBytes(b.TotalBytesDownloaded), shared.FormatBytes(int64(b.AverageDownloadSpeed))))
	buf.WriteString(fmt.Sprintf("**Retries**: %d\n\n", b.TotalRetries))

	buf.WriteString("## Tracks\n\n")
	for _, track := range bt.Tracks {
		albumPart := ""
		if track.Album != "" {
			albumPart = fmt.Sprintf(" (%s)", track.Album)
		}
		buf.WriteString(fmt.Sprintf("%d. %s - %s%s [%s] `%s`\n",
			track.Position, track.Artist, track.Title, albumPart, shared.FormatDuration(track.Duration()), trackLabel(track)))
	}

	return buf.Bytes(), nil
}

// ExportToText converts a batch to plain text
func ExportToText(bt *models.BatchWithTracks) ([]byte, error) {
	var buf bytes.Buffer
	b := bt.Batch

	buf.WriteString(fmt.Sprintf("Batch: %s\n", b.SourceName))
	if b.SourceURL != "" {
		buf.WriteString(fmt.Sprintf("Source: %s\n", b.SourceURL))
	}
	buf.WriteString(fmt.Sprintf("State: %s\n", stateLabel(b)))
	buf.WriteString(fmt.Sprintf("Tracks: %d\n\n", b.TotalTracks))

	for _, track := range bt.Tracks {
		buf.WriteString(fmt.Sprintf("%d. %s - %s [%s]\n", track.Position, track.Artist, track.Title, trackLabel(track)))
	}

	return buf.Bytes(), nil
}

// ExportToJSON encodes the batch and its tracks
func ExportToJSON(bt *models.BatchWithTracks) ([]byte, error) {
	return shared.MarshalJSON(bt, true)
}

// ToMetadataJSON generates a JSON representation of the batch (without tracks)
func ToMetadataJSON(batch *models.Batch) ([]byte, error) {
	return shared.MarshalJSON(batch, true)
}

func stateLabel(b *models.Batch) string {
	if b.ErrorCode != models.ErrorNone {
		return fmt.Sprintf("%s (%s)", b.State, b.ErrorCode)
	}
	return string(b.State)
}

func trackLabel(t *models.Track) string {
	if t.ErrorCode != models.ErrorNone {
		return fmt.Sprintf("%s: %s", t.Status, t.ErrorCode)
	}
	return string(t.Status)
}

// CoverURL returns the first track thumbnail, which stands in for the playlist cover.
func CoverURL(bt *models.BatchWithTracks) string {
	for _, t := range bt.Tracks {
		if t.ThumbnailURL != "" {
			return t.ThumbnailURL
		}
	}
	return ""
}

// DownloadImage downloads an image from the given URL and returns the raw bytes
func DownloadImage(url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("empty URL provided")
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: status %d", resp.StatusCode)
	}

	imageData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	return imageData, nil
}

// CSVExportResult contains the paths of files created by WriteCSVExport
type CSVExportResult struct {
	TracksFile   string
	MetadataFile string
}

// WriteCSVExport exports a batch to CSV with an accompanying metadata JSON file.
//
// Defaults to the batch ID as the base filename & creates {base}_tracks.csv and {base}_batch.json
func WriteCSVExport(bt *models.BatchWithTracks, baseFilepath string) (*CSVExportResult, error) {
	if baseFilepath == "" {
		baseFilepath = bt.Batch.ID
	}

	csvData, err := ExportToCSV(bt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CSV: %w", err)
	}

	tracksFile := baseFilepath + "_tracks.csv"
	if err := os.WriteFile(tracksFile, csvData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write CSV file: %w", err)
	}

	metadataJSON, err := ToMetadataJSON(bt.Batch)
	if err != nil {
		return nil, fmt.Errorf("failed to generate metadata JSON: %w", err)
	}

	metadataFile := baseFilepath + "_batch.json"
	if err := os.WriteFile(metadataFile, metadataJSON, 0644); err != nil {
		return nil, fmt.Errorf("failed to write metadata file: %w", err)
	}

	return &CSVExportResult{
		TracksFile:   tracksFile,
		MetadataFile: metadataFile,
	}, nil
}

// MarkdownExportResult contains information about files created by WriteMarkdownExport
type MarkdownExportResult struct {
	Directory  string
	Files      []string
	CoverImage string
	Warnings   []error
}

// WriteMarkdownExport exports a batch report to Markdown in a dedicated directory.
//
// Directory name defaults to the batch ID.
// The imageURL parameter is optional. A cover that fails to download is reported in Warnings and the report is still written.
// Creates {dir}/README.md and optionally {dir}/cover.jpg
func WriteMarkdownExport(bt *models.BatchWithTracks, outputDir string, imageURL string) (*MarkdownExportResult, error) {
	if outputDir == "" {
		outputDir = bt.Batch.ID
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	result := &MarkdownExportResult{
		Directory: outputDir,
		Files:     []string{},
	}

	var coverImageFilename string
	if imageURL != "" {
		imageData, err := DownloadImage(imageURL)
		if err != nil {
			result.Warnings = append(result.Warnings, err)
		} else {
			coverImageFilename = "cover.jpg"
			coverImagePath := filepath.Join(outputDir, coverImageFilename)
			if err := os.WriteFile(coverImagePath, imageData, 0644); err != nil {
				result.Warnings = append(result.Warnings, fmt.Errorf("failed to save cover image: %w", err))
				coverImageFilename = ""
			} else {
				result.CoverImage = coverImagePath
				result.Files = append(result.Files, coverImagePath)
			}
		}
	}

	mdData, err := ExportToMarkdown(bt, coverImageFilename)
	if err != nil {
		return nil, fmt.Errorf("failed to generate Markdown: %w", err)
	}

	mdFile := filepath.Join(outputDir, "README.md")
	if err := os.WriteFile(mdFile, mdData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write Markdown file: %w", err)
	}

	result.Files = append(result.Files, mdFile)

	return result, nil
}

// WriteTextExport exports a batch to plain text.
//
// Defaults to {batch.ID}_tracks.txt as the filename.
func WriteTextExport(bt *models.BatchWithTracks, path string) (string, error) {
	if path == "" {
		path = fmt.Sprintf("%s_tracks.txt", bt.Batch.ID)
	}

	textData, err := ExportToText(bt)
	if err != nil {
		return "", fmt.Errorf("failed to generate text: %w", err)
	}

	if err := os.WriteFile(path, textData, 0644); err != nil {
		return "", fmt.Errorf("failed to write text file: %w", err)
	}

	return path, nil
}

// WriteJSONExport writes the batch with its tracks as JSON, defaulting to {batch.ID}.json.
func WriteJSONExport(bt *models.BatchWithTracks, path string) (string, error) {
	if path == "" {
		path = bt.Batch.ID + ".json"
	}

	data, err := ExportToJSON(bt)
	if err != nil {
		return "", fmt.Errorf("JSON marshal failed: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write JSON file: %w", err)
	}
	return path, nil
}

// ExportResult lists what [Write] produced.
type ExportResult struct {
	Files    []string
	Warnings []error
}

// Write exports bt in the given format under outputDir, named after the batch ID.
// For markdown, coverURL is downloaded next to the report when set.
func Write(bt *models.BatchWithTracks, format, outputDir, coverURL string) (*ExportResult, error) {
	if outputDir == "" {
		outputDir = "."
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	base := filepath.Join(outputDir, bt.Batch.ID)
	switch strings.ToLower(format) {
	case FormatCSV:
		res, err := WriteCSVExport(bt, base)
		if err != nil {
			return nil, fmt.Errorf("CSV export failed: %w", err)
		}
		return &ExportResult{Files: []string{res.TracksFile, res.MetadataFile}}, nil
	case FormatMarkdown, "md":
		res, err := WriteMarkdownExport(bt, base, coverURL)
		if err != nil {
			return nil, fmt.Errorf("markdown export failed: %w", err)
		}
		return &ExportResult{Files: res.Files, Warnings: res.Warnings}, nil
	case FormatText, "text":
		path, err := WriteTextExport(bt, base+"_tracks.txt")
		if err != nil {
			return nil, fmt.Errorf("text export failed: %w", err)
		}
		return &ExportResult{Files: []string{path}}, nil
	case FormatJSON, "":
		path, err := WriteJSONExport(bt, base+".json")
		if err != nil {
			return nil, err
		}
		return &ExportResult{Files: []string{path}}, nil
	default:
		return nil, fmt.Errorf("%w: unknown export format %q (want one of %s)", shared.ErrInvalidInput, format, strings.Join(Formats, ", "))
	}
}

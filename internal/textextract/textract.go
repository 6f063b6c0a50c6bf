package textextract

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"

	"finextract/internal/config"
	"finextract/internal/domain"
)

// BackendTextract is the name of the managed document-analysis backend.
const BackendTextract = "textract"

// TextractAPI is the subset of the Textract client used here.
type TextractAPI interface {
	AnalyzeDocument(ctx context.Context, in *textract.AnalyzeDocumentInput, optFns ...func(*textract.Options)) (*textract.AnalyzeDocumentOutput, error)
	StartDocumentAnalysis(ctx context.Context, in *textract.StartDocumentAnalysisInput, optFns ...func(*textract.Options)) (*textract.StartDocumentAnalysisOutput, error)
	GetDocumentAnalysis(ctx context.Context, in *textract.GetDocumentAnalysisInput, optFns ...func(*textract.Options)) (*textract.GetDocumentAnalysisOutput, error)
}

// NewTextractClient builds a Textract client from the S3 credentials and the
// Textract region.
func NewTextractClient(ctx context.Context, tcfg *config.TextractConfig, s3cfg *config.S3Config) (*textract.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(tcfg.Region),
	}
	if s3cfg.AccessKey != "" && s3cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s3cfg.AccessKey, s3cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return textract.NewFromConfig(awsCfg), nil
}

// TextractBackend runs synchronous document analysis with table detection
// directly on the document bytes.
type TextractBackend struct {
	client TextractAPI
}

// NewTextractBackend creates a TextractBackend. A nil client makes the
// backend report itself unavailable.
func NewTextractBackend(client TextractAPI) *TextractBackend {
	return &TextractBackend{client: client}
}

func (b *TextractBackend) Name() string { return BackendTextract }

func (b *TextractBackend) Extract(ctx context.Context, doc []byte) (*domain.TextExtraction, error) {
	if b.client == nil {
		return nil, &domain.AvailabilityError{Backend: BackendTextract, Reason: "textract is not enabled"}
	}
	out, err := b.client.AnalyzeDocument(ctx, &textract.AnalyzeDocumentInput{
		Document:     &types.Document{Bytes: doc},
		FeatureTypes: []types.FeatureType{types.FeatureTypeTables},
	})
	if err != nil {
		return nil, fmt.Errorf("analyze document: %w", err)
	}
	pages := 0
	if out.DocumentMetadata != nil && out.DocumentMetadata.Pages != nil {
		pages = int(*out.DocumentMetadata.Pages)
	}
	res := BlocksToExtraction(out.Blocks, pages)
	res.Backend = BackendTextract
	return res, nil
}

// BlocksToExtraction converts analysis blocks into page text (LINE blocks,
// pages separated by form feeds) and tables (TABLE → CELL → WORD).
func BlocksToExtraction(blocks []types.Block, pages int) *domain.TextExtraction {
	byID := make(map[string]types.Block, len(blocks))
	lines := map[int][]string{}
	maxPage := 0
	for _, b := range blocks {
		if b.Id != nil {
			byID[*b.Id] = b
		}
		page := blockPage(b)
		if page > maxPage {
			maxPage = page
		}
		if b.BlockType == types.BlockTypeLine && b.Text != nil {
			lines[page] = append(lines[page], *b.Text)
		}
	}
	if pages < maxPage {
		pages = maxPage
	}

	parts := make([]string, 0, pages)
	for p := 1; p <= pages; p++ {
		parts = append(parts, strings.Join(lines[p], "\n"))
	}

	res := &domain.TextExtraction{Text: strings.Join(parts, "\f"), Pages: pages}
	for _, b := range blocks {
		if b.BlockType != types.BlockTypeTable {
			continue
		}
		if t := buildTable(b, byID); len(t.Rows) > 0 {
			res.Tables = append(res.Tables, t)
		}
	}
	return res
}

func blockPage(b types.Block) int {
	if b.Page == nil {
		return 1
	}
	return int(*b.Page)
}

type cell struct {
	row, col int
	text     string
}

func buildTable(table types.Block, byID map[string]types.Block) domain.TableFragment {
	var cells []cell
	rows, cols := 0, 0
	for _, id := range childIDs(table) {
		c, ok := byID[id]
		if !ok || c.BlockType != types.BlockTypeCell {
			continue
		}
		r, col := int(aws.ToInt32(c.RowIndex)), int(aws.ToInt32(c.ColumnIndex))
		if r <= 0 || col <= 0 {
			continue
		}
		var words []string
		for _, wid := range childIDs(c) {
			if w, ok := byID[wid]; ok && w.Text != nil && w.BlockType == types.BlockTypeWord {
				words = append(words, *w.Text)
			}
		}
		cells = append(cells, cell{row: r, col: col, text: strings.Join(words, " ")})
		if r > rows {
			rows = r
		}
		if col > cols {
			cols = col
		}
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].row != cells[j].row {
			return cells[i].row < cells[j].row
		}
		return cells[i].col < cells[j].col
	})

	grid := make([][]string, rows)
	for i := range grid {
		grid[i] = make([]string, cols)
	}
	for _, c := range cells {
		grid[c.row-1][c.col-1] = c.text
	}
	return domain.TableFragment{Page: blockPage(table), Rows: grid}
}

func childIDs(b types.Block) []string {
	var ids []string
	for _, rel := range b.Relationships {
		if rel.Type == types.RelationshipTypeChild {
			ids = append(ids, rel.Ids...)
		}
	}
	return ids
}

// TablesText renders tables as pipe-separated rows so they can be appended to
// the flat text handed to the model.
func TablesText(tables []domain.TableFragment) string {
	var sb strings.Builder
	for i, t := range tables {
		fmt.Fprintf(&sb, "[table %d, page %d]\n", i+1, t.Page)
		for _, row := range t.Rows {
			sb.WriteString(strings.Join(row, " | "))
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

package parse

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finparse-io/docinbox/constants"
	"github.com/finparse-io/docinbox/internal/common"
	"github.com/finparse-io/docinbox/internal/llm"
)

type fakeExtractor struct {
	text string
	err  error
}

func (f fakeExtractor) Text(context.Context, []byte) (string, error) { return f.text, f.err }

type fakeTextModel struct {
	reply      string
	err        error
	calls      int
	lastPrompt string
}

func (f *fakeTextModel) CallTextModel(_ context.Context, _, userPrompt string, _ int) (llm.Result, error) {
	f.calls++
	f.lastPrompt = userPrompt
	if f.err != nil {
		return llm.Result{}, f.err
	}
	return llm.Result{Text: f.reply, Usage: llm.Usage{InputTokens: 100, OutputTokens: 50}}, nil
}

const statementReply = `{"documentType":"bank_statement","currency":"usd","rows":[{"date":"2024-01-05","description":"coffee","amount":-4.5}]}`

func TestPDFParser_Parse(t *testing.T) {
	t.Run("happy path", func(t *testing.T) {
		model := &fakeTextModel{reply: statementReply}
		p := NewPDFParser(fakeExtractor{text: "ACME BANK\n2024-01-05 coffee -4.50"}, model, 2048, nil)

		out, err := p.Parse(context.Background(), Input{Filename: "jan.pdf"})
		require.NoError(t, err)
		assert.Equal(t, constants.DocTypeBankStatement, out.DocType)
		assert.Equal(t, "pdf-v1", out.ParserVersion)
		assert.Equal(t, 100, out.Usage.InputTokens)
		assert.InDelta(t, 1.0, float64(out.Confidence), 0.0001)
		assert.Equal(t, 1, model.calls)
	})

	t.Run("empty document never reaches the model", func(t *testing.T) {
		model := &fakeTextModel{reply: statementReply}
		p := NewPDFParser(fakeExtractor{text: "  \n\t "}, model, 2048, nil)

		_, err := p.Parse(context.Background(), Input{Filename: "scan.pdf"})
		require.Error(t, err)
		assert.True(t, common.IsCode(err, common.CodeEmptyDocument))
		assert.Equal(t, 0, model.calls)
	})

	t.Run("oversized text is truncated and confidence penalized", func(t *testing.T) {
		model := &fakeTextModel{reply: statementReply}
		p := NewPDFParser(fakeExtractor{text: strings.Repeat("x", MaxDocumentChars+5_000)}, model, 2048, nil)

		out, err := p.Parse(context.Background(), Input{Filename: "huge.pdf"})
		require.NoError(t, err)
		assert.LessOrEqual(t, len(model.lastPrompt), MaxDocumentChars+len(truncationMarker))
		assert.True(t, strings.HasSuffix(model.lastPrompt, truncationMarker))
		assert.InDelta(t, truncationPenalty, float64(out.Confidence), 0.0001)
	})

	t.Run("extractor failure is an infrastructure error", func(t *testing.T) {
		p := NewPDFParser(fakeExtractor{err: errors.New("corrupt xref table")}, &fakeTextModel{}, 2048, nil)
		_, err := p.Parse(context.Background(), Input{Filename: "broken.pdf"})
		require.Error(t, err)
		var appErr *common.AppError
		assert.False(t, errors.As(err, &appErr))
	})

	t.Run("model garbage surfaces as invalid output", func(t *testing.T) {
		model := &fakeTextModel{reply: "I am unable to process this document."}
		p := NewPDFParser(fakeExtractor{text: "some statement text"}, model, 2048, nil)

		_, err := p.Parse(context.Background(), Input{Filename: "odd.pdf"})
		require.Error(t, err)
		assert.True(t, common.IsCode(err, common.CodeInvalidModelOutput))
	})
}

package parse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finparse-io/docinbox/constants"
	"github.com/finparse-io/docinbox/internal/common"
	"github.com/finparse-io/docinbox/internal/llm"
)

type fakeVisionModel struct {
	reply    string
	lastMIME string
}

func (f *fakeVisionModel) CallVisionModel(_ context.Context, _ []byte, mimeType, _ string) (llm.Result, error) {
	f.lastMIME = mimeType
	return llm.Result{Text: f.reply, Usage: llm.Usage{InputTokens: 400, OutputTokens: 120}}, nil
}

func TestImageParser_Parse(t *testing.T) {
	t.Run("validated receipt comes back with parser metadata", func(t *testing.T) {
		model := &fakeVisionModel{reply: "```json\n" +
			`{"documentType":"receipt","currency":"usd","mainTransaction":{"merchant":"Corner Deli","amount":12.75,"date":"2024-05-02"}}` +
			"\n```"}
		p := NewImageParser(model, nil)

		out, err := p.Parse(context.Background(), Input{Filename: "receipt.jpg", MimeType: "image/JPEG; q=0.9"})
		require.NoError(t, err)
		assert.Equal(t, constants.DocTypeReceipt, out.DocType)
		assert.Equal(t, "image-v1", out.ParserVersion)
		assert.Equal(t, 400, out.Usage.InputTokens)
		assert.Equal(t, "image/jpeg", model.lastMIME)
	})

	t.Run("unvalidatable output fails the parse", func(t *testing.T) {
		p := NewImageParser(&fakeVisionModel{reply: "this photo is too blurry"}, nil)
		_, err := p.Parse(context.Background(), Input{Filename: "blurry.jpg", MimeType: "image/jpeg"})
		require.Error(t, err)
		assert.True(t, common.IsCode(err, common.CodeInvalidModelOutput))
	})
}

package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartmail/internal/model"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    model.Classification
		wantErr bool
	}{
		{
			name: "plain json",
			in:   `{"category":"Finance / Bills","confidence":0.91,"reasoning":"invoice","summary":"pay it"}`,
			want: model.Classification{Category: model.CategoryFinance, Confidence: 0.91, Reasoning: "invoice", Summary: "pay it"},
		},
		{
			name: "fenced with json tag",
			in:   "```json\n{\"category\":\"Personal\",\"confidence\":0.7,\"reasoning\":\"r\",\"summary\":\"s\"}\n```",
			want: model.Classification{Category: model.CategoryPersonal, Confidence: 0.7, Reasoning: "r", Summary: "s"},
		},
		{
			name: "defaults for missing fields",
			in:   `{}`,
			want: model.Classification{Category: model.CategoryOther, Confidence: 0.5, Reasoning: "No reasoning provided"},
		},
		{
			name: "unknown category clamps to Other",
			in:   `{"category":"Taxes","confidence":0.8}`,
			want: model.Classification{Category: model.CategoryOther, Confidence: 0.8, Reasoning: "No reasoning provided"},
		},
		{
			name: "confidence as string and out of range",
			in:   `{"category":"Work / Professional","confidence":"1.7"}`,
			want: model.Classification{Category: model.CategoryWork, Confidence: 1, Reasoning: "No reasoning provided"},
		},
		{
			name:    "not json",
			in:      "I think this is spam.",
			want:    Fallback(),
			wantErr: true,
		},
		{
			name:    "json array",
			in:      `["Spam / Junk"]`,
			want:    Fallback(),
			wantErr: true,
		},
		{
			name:    "null",
			in:      `null`,
			want:    Fallback(),
			wantErr: true,
		},
		{
			name:    "unparseable confidence",
			in:      `{"category":"Personal","confidence":"high"}`,
			want:    Fallback(),
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decode(tt.in)
			assert.Equal(t, tt.want, got.Classification)
			if tt.wantErr {
				assert.Error(t, got.Err)
			} else {
				assert.NoError(t, got.Err)
			}
		})
	}
}

func TestFallback(t *testing.T) {
	f := Fallback()
	assert.Equal(t, model.CategoryOther, f.Category)
	assert.Equal(t, 0.5, f.Confidence)
	assert.Equal(t, "Parsing error", f.Reasoning)
	assert.Empty(t, f.Summary)
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt(model.EmailRecord{
		Subject:  "Quarterly review",
		From:     "boss@example.com",
		Snippet:  "Let's meet",
		BodyHTML: "<p>Let's meet Tuesday</p>",
	})
	for _, c := range model.Categories() {
		assert.Contains(t, p, "'"+string(c)+"'")
	}
	assert.Contains(t, p, "- Subject: Quarterly review")
	assert.Contains(t, p, "- From: boss@example.com")
	assert.Contains(t, p, "- Body: <p>Let's meet Tuesday</p>")

	p = BuildPrompt(model.EmailRecord{BodyPlain: "plain wins", BodyHTML: "<p>html</p>"})
	assert.Contains(t, p, "- Body: plain wins")
	require.NotContains(t, p, "<p>html</p>")
}

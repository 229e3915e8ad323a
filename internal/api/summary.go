package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"smartmail/internal/model"
	"smartmail/internal/normalize"
	"smartmail/internal/service/ingest"
)

type emailSummary struct {
	ID       string     `json:"id"`
	From     string     `json:"from"`
	To       []string   `json:"to"`
	Subject  string     `json:"subject"`
	Snippet  string     `json:"snippet"`
	Date     *time.Time `json:"date"`
	ThreadID string     `json:"thread_id"`
}

type classifiedSummary struct {
	ID             string                `json:"id"`
	From           string                `json:"from"`
	Subject        string                `json:"subject"`
	Category       model.Category        `json:"category"`
	Snippet        string                `json:"snippet"`
	Date           *time.Time            `json:"date"`
	ThreadID       string                `json:"thread_id"`
	Classification *model.Classification `json:"classification"`
}

func summarize(recs []model.EmailRecord) []emailSummary {
	out := make([]emailSummary, 0, len(recs))
	for _, r := range recs {
		out = append(out, emailSummary{
			ID:       r.ID,
			From:     r.From,
			To:       r.To,
			Subject:  r.Subject,
			Snippet:  normalize.CleanText(r.Snippet),
			Date:     r.Date,
			ThreadID: r.ThreadID,
		})
	}
	return out
}

func summarizeClassified(recs []model.EmailRecord) []classifiedSummary {
	out := make([]classifiedSummary, 0, len(recs))
	for _, r := range recs {
		s := classifiedSummary{
			ID:             r.ID,
			From:           r.From,
			Subject:        r.Subject,
			Snippet:        normalize.CleanText(r.Snippet),
			Date:           r.Date,
			ThreadID:       r.ThreadID,
			Classification: r.Classification,
		}
		if r.Classification != nil {
			s.Category = r.Classification.Category
		}
		out = append(out, s)
	}
	return out
}

func fetchBody(res *ingest.Result) gin.H {
	if res.Fetched == 0 {
		return gin.H{"fetched": 0, "message": "No emails fetched"}
	}
	return gin.H{
		"fetched":       res.Fetched,
		"upsert_result": res.Upsert,
		"total_stored":  res.TotalStored,
		"emails":        summarize(res.Emails),
	}
}

func classifyBody(updated []model.EmailRecord) gin.H {
	return gin.H{
		"status":            "Classification completed",
		"classified_count":  len(updated),
		"classified_emails": summarizeClassified(updated),
	}
}

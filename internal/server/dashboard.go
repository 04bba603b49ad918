package server

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/maintai/abtest/internal/abtest"
	"github.com/maintai/abtest/internal/stats"
)

//go:embed templates/*.html
var templates embed.FS

// recentConversions is how many conversions the dashboard lists per variant.
const recentConversions = 5

type dashboardData struct {
	Generated   string
	Experiments []dashboardExperiment
}

type dashboardExperiment struct {
	ID                string
	Name              string
	Description       string
	State             string
	Leader            string
	ConfidencePercent float64
	Confident         bool
	Variants          []dashboardVariant
}

type dashboardVariant struct {
	ID             string
	Name           string
	Assignments    int
	Conversions    int
	RatePercent    float64
	CILowerPercent float64
	CIUpperPercent float64
	TotalValue     string
	Recent         []dashboardConversion
}

type dashboardConversion struct {
	Type  string
	Value float64
	At    string
}

func dashboardTemplate() *template.Template {
	return template.Must(template.New("").Funcs(template.FuncMap{
		"percent": formatPercentage,
	}).ParseFS(templates, "templates/*.html"))
}

func (s *Server) handleDashboard(c *gin.Context) {
	if c.Query("logout") == "1" {
		c.SetCookie(tokenCookieName, "", -1, "/", "", false, true)
		c.Redirect(http.StatusFound, "/dashboard")
		return
	}

	a, err := s.manager.Analytics(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}

	now := time.Now()
	data := dashboardData{Generated: now.UTC().Format(time.RFC1123)}
	for _, e := range s.catalog.All() {
		summary := a[e.ID]
		result := stats.Analyze(e, summary)

		de := dashboardExperiment{
			ID:                e.ID,
			Name:              e.Name,
			Description:       e.Description,
			State:             string(e.State(now)),
			Leader:            result.Leader,
			ConfidencePercent: result.ConfidenceLevel * 100,
			Confident:         result.Confident,
		}
		for _, v := range result.Variants {
			dv := dashboardVariant{
				ID:             v.ID,
				Name:           v.Name,
				Assignments:    v.Assignments,
				Conversions:    v.Conversions,
				RatePercent:    v.Rate * 100,
				CILowerPercent: v.CILower * 100,
				CIUpperPercent: v.CIUpper * 100,
				TotalValue:     v.TotalValue.StringFixed(2),
			}
			if summary != nil {
				dv.Recent = recent(summary, v.ID)
			}
			de.Variants = append(de.Variants, dv)
		}
		data.Experiments = append(data.Experiments, de)
	}

	c.HTML(http.StatusOK, "dashboard.html", data)
}

func recent(summary *abtest.Summary, variantID string) []dashboardConversion {
	var out []dashboardConversion
	for _, conv := range summary.RecentConversions(variantID, recentConversions) {
		out = append(out, dashboardConversion{
			Type:  conv.Type,
			Value: conv.Value,
			At:    conv.Timestamp.Format("Jan 2 15:04:05"),
		})
	}
	return out
}

func formatPercentage(p float64) string {
	if p < 0.01 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", p)
}

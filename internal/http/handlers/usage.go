package handlers

import (
	"net/http"
	"time"
)

type usageResponse struct {
	Plan         string    `json:"plan"`
	Paid         bool      `json:"paid"`
	PeriodStart  time.Time `json:"period_start"`
	Used         int       `json:"used"`
	MonthlyLimit int       `json:"monthly_limit"`
	Remaining    int       `json:"remaining"`
}

func (a *App) GetUsage(w http.ResponseWriter, r *http.Request) {
	auth, ok := a.currentAuth(w, r)
	if !ok {
		return
	}
	usage, budget, err := a.Usage.Current(r.Context(), auth.UserID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, usageResponse{
		Plan:         string(budget.Plan),
		Paid:         budget.Paid(),
		PeriodStart:  usage.PeriodStart,
		Used:         usage.Used,
		MonthlyLimit: usage.MonthlyLimit,
		Remaining:    usage.Remaining,
	})
}

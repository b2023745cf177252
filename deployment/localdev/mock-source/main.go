package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"strconv"
	"time"
)

type exportSignal struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Severity    string            `json:"severity"`
	Department  string            `json:"department"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedBy   string            `json:"createdBy"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

type exportPage struct {
	Signals    []exportSignal `json:"signals"`
	NextCursor string         `json:"nextCursor,omitempty"`
}

func sampleSignals(now time.Time) []exportSignal {
	at := func(days int) time.Time { return now.Add(-time.Duration(days) * 24 * time.Hour) }
	return []exportSignal{
		{ID: "sig-001", Title: "Approval workflow delays on drawing sign-off", Description: "Drawing approvals wait weeks for principal sign-off because the review process has too many steps. This delays permit submittals.", Severity: "HIGH", Department: "Project Management", Metadata: map[string]string{"projectPhase": "documentation"}, CreatedAt: at(12)},
		{ID: "sig-002", Title: "Slow sign-off process for construction documents", Description: "Sign-off on construction documents is held up because every sheet needs approval from three reviewers. The approval workflow bottleneck delays the schedule.", Severity: "HIGH", Department: "Project Management", CreatedAt: at(10)},
		{ID: "sig-003", Title: "Permit resubmittals pile up", Description: "Permit comments come back late and the internal approval process for resubmittals adds another two weeks to every cycle.", Severity: "MEDIUM", Department: "Architecture", CreatedAt: at(9)},
		{ID: "sig-004", Title: "BIM Model Synchronization Issues", Description: "The Revit central model keeps getting corrupted when team members synchronize with central. Worksharing conflicts between linked models cause lost work.", Severity: "CRITICAL", Department: "IT", CreatedAt: at(8)},
		{ID: "sig-005", Title: "Revit central file corruption", Description: "Revit worksharing sync failures corrupt the central model several times a week, causing rework for the architecture and MEP teams.", Severity: "HIGH", Department: "IT", CreatedAt: at(7)},
		{ID: "sig-006", Title: "Autodesk license server outages", Description: "The Autodesk license server drops connections and Revit and AutoCAD seats are unavailable for hours, stalling model work.", Severity: "HIGH", Department: "IT", CreatedAt: at(6)},
		{ID: "sig-007", Title: "Structural team understaffed", Description: "The structural engineering team is understaffed and overloaded; overtime and burnout are rising because hiring has stalled.", Severity: "HIGH", Department: "Structural", CreatedAt: at(5)},
		{ID: "sig-008", Title: "Coordination clashes found late", Description: "Clash detection between structural beams and MEP ductwork happens too late, causing rework and RFIs from the contractor.", Severity: "MEDIUM", Department: "MEP", CreatedAt: at(4)},
		{ID: "sig-009", Title: "New hires lack Revit standards training", Description: "Junior staff are not trained on our Revit templates and drafting standards, so QA/QC catches the same errors on every set.", Severity: "MEDIUM", Department: "Architecture", CreatedAt: at(3)},
		{ID: "sig-010", Title: "Client not informed of scope changes", Description: "Scope changes agreed in coordination meetings are not communicated to the client, leading to fee disputes and change order friction.", Severity: "HIGH", Department: "Project Management", CreatedAt: at(2)},
	}
}

func main() {
	addr := flag.String("addr", ":8090", "listen address")
	flag.Parse()

	signals := sampleSignals(time.Now().UTC())
	for i := range signals {
		signals[i].CreatedBy = "mock-source"
		signals[i].UpdatedAt = signals[i].CreatedAt
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/api/signals/export", func(w http.ResponseWriter, r *http.Request) {
		if !enforceGet(w, r) {
			return
		}
		writeJSON(w, page(signals, r))
	})

	logger := log.New(log.Writer(), "source-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:              *addr,
		Handler:           logRequests(logger, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

// page filters by since and slices by limit, using the next index as the cursor.
func page(all []exportSignal, r *http.Request) exportPage {
	q := r.URL.Query()
	var since time.Time
	if v := q.Get("since"); v != "" {
		since, _ = time.Parse(time.RFC3339, v)
	}
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit <= 0 {
		limit = 5
	}
	start, _ := strconv.Atoi(q.Get("cursor"))

	var filtered []exportSignal
	for _, s := range all {
		if s.UpdatedAt.Before(since) {
			continue
		}
		filtered = append(filtered, s)
	}
	if start >= len(filtered) {
		return exportPage{Signals: []exportSignal{}}
	}
	end := min(start+limit, len(filtered))
	out := exportPage{Signals: filtered[start:end]}
	if end < len(filtered) {
		out.NextCursor = strconv.Itoa(end)
	}
	return out
}

func enforceGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

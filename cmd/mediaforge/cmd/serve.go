package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"github.com/mediaforge/mediaforge/pkg/admission"
	"github.com/mediaforge/mediaforge/pkg/shutdown"
	"github.com/mediaforge/mediaforge/pkg/tracker"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the orchestration engine as a daemon",
	Long:  `Starts the engine with its background monitors and an HTTP endpoint exposing Prometheus metrics, engine statistics, and job views.`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

type statsResponse struct {
	Tracker   tracker.Statistics `json:"tracker"`
	Admission admission.Stats    `json:"admission"`
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	eng, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	eng.start()

	router := mux.NewRouter()
	router.Handle("/metrics", eng.metrics.Handler())
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods("GET")
	router.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, statsResponse{
			Tracker:   eng.tracker.Statistics(),
			Admission: eng.ctrl.Stats(),
		})
	}).Methods("GET")
	router.HandleFunc("/jobs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, eng.tracker.Jobs())
	}).Methods("GET")
	router.HandleFunc("/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		job, err := eng.tracker.JobDetails(mux.Vars(r)["id"])
		if err != nil {
			if errors.Is(err, tracker.ErrJobNotFound) {
				http.Error(w, err.Error(), http.StatusNotFound)
			} else {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
			return
		}
		writeJSON(w, job)
	}).Methods("GET")

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	mgr := shutdown.New(30*time.Second, eng.log)
	mgr.Register(func(ctx context.Context) error {
		eng.stop()
		return nil
	})
	mgr.Register(server.Shutdown)

	go func() {
		eng.log.Info("http server listening", map[string]interface{}{"addr": cfg.ListenAddr})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			eng.log.Error("http server", map[string]interface{}{"error": err.Error()})
		}
	}()

	mgr.Wait()
	return nil
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

package events

import "time"

// Evento publicado no tópico "fixture_results" pelo results-ingest-service
// Carrega o placar final (ou cancelamento) de uma partida
type FixtureResult struct {
	FixtureID  string    `json:"fixture_id"`
	HomeTeam   string    `json:"home_team"`
	AwayTeam   string    `json:"away_team"`
	HomeScore  int       `json:"home_score"`
	AwayScore  int       `json:"away_score"`
	Cancelled  bool      `json:"cancelled"` // partida adiada/cancelada -> legs viram VOID
	FinishedAt time.Time `json:"finished_at"`
	Source     string    `json:"source"`  // "results-simulator"
	Version    int       `json:"version"` // incrementado a cada emissão
}

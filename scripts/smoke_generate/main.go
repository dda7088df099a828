package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type scenario struct {
	Name         string          `json:"name"`
	Critical     bool            `json:"critical"`
	ExpectStatus int             `json:"expectStatus"`
	Payload      json.RawMessage `json:"payload"`
}

type config struct {
	Scenarios []scenario `json:"scenarios"`
}

type overall struct {
	TotalCells int `json:"totalCells"`
	UsedCells  int `json:"usedCells"`
	FreeCells  int `json:"freeCells"`
	BreakCells int `json:"breakCells"`
	EmptyCells int `json:"emptyCells"`
}

type facultyStat struct {
	Name     string `json:"name"`
	Lectures int    `json:"lectures"`
	Labs     int    `json:"labs"`
	Total    int    `json:"total"`
}

type entry struct {
	Day     string `json:"day"`
	Slot    string `json:"slot"`
	Faculty string `json:"faculty"`
}

type timetable struct {
	ID       string              `json:"id"`
	Schedule []map[string]string `json:"schedule"`
	Entries  []entry             `json:"entries"`
	Stats    struct {
		PerFaculty []facultyStat `json:"perFaculty"`
		Overall    overall       `json:"overall"`
	} `json:"stats"`
}

type result struct {
	Scenario scenario
	Status   int
	Problems []string
	Error    error
	Duration time.Duration
}

func main() {
	var (
		base          string
		scenariosPath string
		timeout       time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080/api/v1", "API base URL")
	flag.StringVar(&scenariosPath, "scenarios", filepath.Join("scripts", "smoke_generate", "scenarios.json"), "Path to JSON scenarios file")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	scenarios, err := loadScenarios(scenariosPath)
	if err != nil {
		log.Fatalf("failed to load scenarios: %v", err)
	}

	client := &http.Client{Timeout: timeout}
	var (
		results  []result
		breaking int
		optional int
	)

	for _, sc := range scenarios {
		res := runScenario(client, base, sc)
		if res.Error != nil || len(res.Problems) > 0 {
			if sc.Critical {
				breaking++
			} else {
				optional++
			}
		}
		results = append(results, res)
	}

	printReport(results)

	fmt.Printf("Breaking failures: %d, Optional failures: %d\n", breaking, optional)
	if breaking > 0 {
		os.Exit(1)
	}
}

func loadScenarios(path string) ([]scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Scenarios) == 0 {
		return nil, fmt.Errorf("no scenarios defined in %s", path)
	}
	return cfg.Scenarios, nil
}

func runScenario(client *http.Client, base string, sc scenario) result {
	res := result{Scenario: sc}
	body, status, dur, err := post(client, strings.TrimRight(base, "/")+"/timetables", sc.Payload)
	res.Status = status
	res.Duration = dur
	if err != nil {
		res.Error = err
		return res
	}

	expect := sc.ExpectStatus
	if expect == 0 {
		expect = http.StatusCreated
	}
	if status != expect {
		res.Problems = append(res.Problems, fmt.Sprintf("status %d, want %d", status, expect))
		return res
	}
	if status != http.StatusCreated {
		return res
	}

	var envelope struct {
		Data timetable `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		res.Error = fmt.Errorf("decode body: %w", err)
		return res
	}
	res.Problems = checkTimetable(envelope.Data)
	return res
}

func post(client *http.Client, url string, payload []byte) ([]byte, int, time.Duration, error) {
	if client == nil {
		return nil, 0, 0, errors.New("nil client")
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, time.Since(start), fmt.Errorf("read body: %w", err)
	}
	return body, resp.StatusCode, time.Since(start), nil
}

// checkTimetable verifies the grid accounting and that no faculty member is booked twice in one cell.
func checkTimetable(tt timetable) []string {
	var problems []string
	if tt.ID == "" {
		problems = append(problems, "missing id")
	}
	if len(tt.Schedule) != 8 {
		problems = append(problems, fmt.Sprintf("schedule has %d rows, want 8", len(tt.Schedule)))
	}
	for i, row := range tt.Schedule {
		if len(row) != 7 {
			problems = append(problems, fmt.Sprintf("row %d has %d columns, want 7", i, len(row)))
		}
	}

	o := tt.Stats.Overall
	if o.TotalCells != 48 || o.BreakCells != 12 {
		problems = append(problems, fmt.Sprintf("grid is %d cells with %d breaks, want 48 and 12", o.TotalCells, o.BreakCells))
	}
	if sum := o.UsedCells + o.FreeCells + o.BreakCells + o.EmptyCells; sum != o.TotalCells {
		problems = append(problems, fmt.Sprintf("cell accounting sums to %d, want %d", sum, o.TotalCells))
	}
	if len(tt.Entries) != o.UsedCells {
		problems = append(problems, fmt.Sprintf("%d entries for %d used cells", len(tt.Entries), o.UsedCells))
	}

	seen := make(map[string]struct{}, len(tt.Entries))
	for _, e := range tt.Entries {
		key := e.Day + "|" + e.Slot
		if _, dup := seen[key]; dup {
			problems = append(problems, fmt.Sprintf("cell %s %s assigned twice", e.Day, e.Slot))
		}
		seen[key] = struct{}{}
	}

	for _, f := range tt.Stats.PerFaculty {
		if f.Lectures+f.Labs != f.Total {
			problems = append(problems, fmt.Sprintf("faculty %s total %d != %d lectures + %d labs", f.Name, f.Total, f.Lectures, f.Labs))
		}
	}
	return problems
}

func printReport(results []result) {
	fmt.Println("Timetable Smoke Report")
	fmt.Println("======================")
	for _, res := range results {
		status := "OK"
		if res.Error != nil {
			status = "ERROR"
		} else if len(res.Problems) > 0 {
			status = "FAIL"
		}
		fmt.Printf("[%s] %s\n", status, res.Scenario.Name)
		fmt.Printf("  Status: %d (%s) | Critical: %t\n", res.Status, res.Duration, res.Scenario.Critical)
		if res.Error != nil {
			fmt.Printf("  Error: %v\n", res.Error)
		}
		for _, p := range res.Problems {
			fmt.Printf("  - %s\n", p)
		}
	}
}

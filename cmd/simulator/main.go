package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
)

// Step mirrors the API's pipeline step payload.
type Step struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Ordinal  int     `json:"ordinal"`
	SLAHours float64 `json:"sla_hours"`
}

// Vehicle mirrors the API's vehicle payload.
type Vehicle struct {
	ID          string `json:"id"`
	VIN         string `json:"vin"`
	StockNumber string `json:"stock_number"`
	Make        string `json:"make"`
	Model       string `json:"model"`
	Year        int    `json:"year"`
}

// WorkItem mirrors the API's work item payload.
type WorkItem struct {
	ID               string  `json:"id"`
	VehicleID        string  `json:"vehicle_id"`
	Title            string  `json:"title"`
	WorkType         string  `json:"work_type"`
	EstimatedCost    float64 `json:"estimated_cost"`
	ApprovalRequired bool    `json:"approval_required"`
}

var defaultPipeline = []Step{
	{Name: "Intake Inspection", SLAHours: 24},
	{Name: "Mechanical", SLAHours: 72},
	{Name: "Body Shop", SLAHours: 96},
	{Name: "Detail", SLAHours: 24},
	{Name: "Photos", SLAHours: 24},
	{Name: "Front Line Ready", SLAHours: 24},
}

var workTypes = []string{"mechanical", "cosmetic", "detailing", "safety_inspection", "parts"}

var workTitles = map[string][]string{
	"mechanical":        {"Replace brake pads", "Oil and filter change", "Alignment", "Replace serpentine belt"},
	"cosmetic":          {"Paintless dent repair", "Windshield chip fill", "Wheel refinish"},
	"detailing":         {"Full interior detail", "Engine bay clean", "Odor treatment"},
	"safety_inspection": {"120-point inspection", "Emissions test"},
	"parts":             {"Order floor mats", "Order tail light assembly"},
}

var authToken string

var httpClient = &http.Client{Timeout: 10 * time.Second}

func request(method, url string, payload interface{}, out interface{}) error {
	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s: status %d", method, url, resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// login exchanges simulator credentials for a bearer token.
func login(apiURL, username, password string) error {
	var result struct {
		Token string `json:"token"`
	}
	err := request(http.MethodPost, apiURL+"/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, &result)
	if err != nil {
		return err
	}
	authToken = result.Token
	return nil
}

// ensurePipeline seeds the default step sequence when the registry is empty.
func ensurePipeline(apiURL string) ([]Step, error) {
	var steps []Step
	if err := request(http.MethodGet, apiURL+"/steps", nil, &steps); err != nil {
		return nil, err
	}
	if len(steps) > 0 {
		return steps, nil
	}
	for _, step := range defaultPipeline {
		if err := request(http.MethodPost, apiURL+"/steps", step, nil); err != nil {
			return nil, err
		}
	}
	if err := request(http.MethodGet, apiURL+"/steps", nil, &steps); err != nil {
		return nil, err
	}
	log.WithField("steps", len(steps)).Info("Seeded default pipeline")
	return steps, nil
}

func createVehicle(apiURL string, n int) (*Vehicle, error) {
	makes := []string{"Toyota", "Honda", "Ford", "Chevrolet", "BMW"}
	models := []string{"Camry", "Civic", "F-150", "Silverado", "X3"}
	i := rand.Intn(len(makes))

	vehicle := Vehicle{
		VIN:         fmt.Sprintf("1SIM%017d", rand.Int63n(1e9)),
		StockNumber: fmt.Sprintf("S%05d", 10000+n),
		Make:        makes[i],
		Model:       models[i],
		Year:        2018 + rand.Intn(8),
	}
	var created Vehicle
	if err := request(http.MethodPost, apiURL+"/vehicles", vehicle, &created); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"vehicle_id": created.ID,
		"stock":      created.StockNumber,
		"make":       created.Make,
		"model":      created.Model,
	}).Info("Created vehicle")
	return &created, nil
}

// runWorkItem walks one work item through a plausible lifecycle.
func runWorkItem(apiURL, vehicleID string) {
	workType := workTypes[rand.Intn(len(workTypes))]
	titles := workTitles[workType]
	item := WorkItem{
		VehicleID:        vehicleID,
		Title:            titles[rand.Intn(len(titles))],
		WorkType:         workType,
		EstimatedCost:    50 + rand.Float64()*700,
		ApprovalRequired: rand.Float64() < 0.3,
	}
	var created WorkItem
	if err := request(http.MethodPost, apiURL+"/work-items", item, &created); err != nil {
		log.WithError(err).Warn("Failed to create work item")
		return
	}
	base := apiURL + "/work-items/" + created.ID

	if item.ApprovalRequired {
		if rand.Float64() < 0.15 {
			request(http.MethodPost, base+"/decline", map[string]string{"reason": "Over recon budget"}, nil)
			log.WithField("work_item", created.ID).Info("Work item declined")
			return
		}
		if err := request(http.MethodPost, base+"/approve", nil, nil); err != nil {
			log.WithError(err).Warn("Failed to approve work item")
			return
		}
	}

	if err := request(http.MethodPost, base+"/start", nil, nil); err != nil {
		log.WithError(err).Warn("Failed to start work item")
		return
	}
	actual := item.EstimatedCost * (0.8 + rand.Float64()*0.5)
	if err := request(http.MethodPost, base+"/complete", map[string]float64{"actual_cost": actual}, nil); err != nil {
		log.WithError(err).Warn("Failed to complete work item")
		return
	}
	log.WithFields(log.Fields{"work_item": created.ID, "title": item.Title}).Info("Work item completed")
}

// simulateVehicle moves one vehicle along the pipeline, doing work at each
// step. Dwell time per step is randomized to spread vehicles across the day
// buckets.
func simulateVehicle(apiURL string, vehicle *Vehicle, steps []Step, tick time.Duration) {
	for _, step := range steps {
		url := fmt.Sprintf("%s/vehicles/%s/move", apiURL, vehicle.ID)
		if err := request(http.MethodPost, url, map[string]string{"step_id": step.ID}, nil); err != nil {
			log.WithError(err).WithField("step", step.Name).Warn("Failed to move vehicle")
			return
		}
		log.WithFields(log.Fields{
			"vehicle_id": vehicle.ID,
			"step":       step.Name,
		}).Info("Vehicle moved")

		for i := 0; i < rand.Intn(3); i++ {
			runWorkItem(apiURL, vehicle.ID)
		}

		dwell := time.Duration(1+rand.Intn(5)) * tick
		time.Sleep(dwell)
	}
	log.WithField("vehicle_id", vehicle.ID).Info("Vehicle finished the pipeline")
}

func main() {
	authToken = os.Getenv("SIM_AUTH_TOKEN")

	apiURL := os.Getenv("API_BASE_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080/api"
	}

	lotSize := 8
	if v := os.Getenv("LOT_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			lotSize = n
		}
	}

	tick := 10 * time.Second
	if v := os.Getenv("SIM_TICK_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			tick = time.Duration(n) * time.Second
		}
	}

	if authToken == "" {
		username := os.Getenv("SIM_USERNAME")
		password := os.Getenv("SIM_PASSWORD")
		if username != "" {
			if err := login(apiURL, username, password); err != nil {
				log.WithError(err).Fatal("Simulator login failed")
			}
			log.WithField("username", username).Info("Simulator authenticated")
		}
	}

	log.WithFields(log.Fields{
		"lot_size": lotSize,
		"api_url":  apiURL,
		"tick":     tick,
	}).Info("Starting recon lot simulation")

	steps, err := ensurePipeline(apiURL)
	if err != nil {
		log.WithError(err).Fatal("Failed to load pipeline steps")
	}

	created := 0
	for i := 0; i < lotSize; i++ {
		vehicle, err := createVehicle(apiURL, i)
		if err != nil {
			log.WithError(err).Error("Failed to create vehicle")
			continue
		}
		created++
		go simulateVehicle(apiURL, vehicle, steps, tick)
		// Stagger arrivals so the lot does not fill at once.
		time.Sleep(tick / 2)
	}

	if created == 0 {
		log.Error("No vehicles created. Ensure the API is reachable and the token grants create permissions.")
		return
	}

	log.WithField("vehicles", created).Info("Lot simulation running")
	select {}
}

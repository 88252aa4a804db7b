package types

// Adapter result structs for the Sigen cloud API. Field names carry the
// vendor's JSON keys; optional values are pointers so an absent field is
// distinguishable from a zero reading.

// EnergyFlow is the real-time power snapshot for a station.
type EnergyFlow struct {
	PVDayEnergy    *float64 `json:"pvDayNrg"`
	PVPower        *float64 `json:"pvPower"`
	LoadPower      *float64 `json:"loadPower"`
	BatterySOC     *float64 `json:"batterySoc"`
	BuySellPower   *float64 `json:"buySellPower"`
	BatteryPower   *float64 `json:"batteryPower"`
	OnGrid         *bool    `json:"onGrid"`
	StationStatus  *float64 `json:"stationStatus"`
	OnOffGrid      *float64 `json:"onOffGridStatus"`
	ACPower        *float64 `json:"acPower"`
	EVPower        *float64 `json:"evPower"`
	GeneratorPower *float64 `json:"generatorPower"`
	HeatPumpPower  *float64 `json:"heatPumpPower"`
	ThirdPVPower   *float64 `json:"thirdPvPower"`
}

// DailySummary is one calendar day's energy totals from the statistics
// endpoint, all in kWh.
type DailySummary struct {
	HomeConsumption     *float64 `json:"powerUse"`
	GridImport          *float64 `json:"powerFromGrid"`
	GridExport          *float64 `json:"powerToGrid"`
	PVGeneration        *float64 `json:"powerGeneration"`
	BatteryCharge       *float64 `json:"esCharging"`
	BatteryDischarge    *float64 `json:"esDischarging"`
	PVSelfConsumption   *float64 `json:"powerSelfConsumption"`
	LoadSelfSufficiency *float64 `json:"powerOneself"`
}

// ConsumptionStats carries a day's base-load total plus its hourly detail.
type ConsumptionStats struct {
	BaseLoad *float64            `json:"baseLoadConsumption"`
	Details  []ConsumptionDetail `json:"consumptionDetailList"`
}

// ConsumptionDetail is a single hourly base-load reading. DataTime is the
// vendor's local wall-clock string, e.g. "20240601 14:00".
type ConsumptionDetail struct {
	DataTime string   `json:"dataTime"`
	BaseLoad *float64 `json:"baseLoadConsumption"`
}

// SunTimes holds the station's sunrise and sunset as local clock strings for
// one date.
type SunTimes struct {
	Sunrise string `json:"sunriseTime"`
	Sunset  string `json:"sunsetTime"`
}

// StationInfo is the station metadata from the owner home endpoint.
type StationInfo struct {
	StationID   *int64   `json:"stationId"`
	StationName string   `json:"stationName"`
	PVCapacity  *float64 `json:"pvCapacity"`
	TimeZone    string   `json:"timeZone"`
}

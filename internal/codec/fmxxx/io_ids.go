// Package fmxxx names the IO element ids reported by FMB/FMC/FMM terminals.
package fmxxx

import "strconv"

// 1-byte elements.
const (
	DIn1        = 1
	DIn2        = 2
	DIn3        = 3
	SDStatus    = 10
	GSMSignal   = 21
	BLEBatt1    = 29
	GnssStatus  = 69
	DataMode    = 80
	BattLevel   = 113
	DOut1       = 179
	DOut2       = 180
	SleepMode   = 200
	LLS1Temp    = 202
	LLS2Temp    = 204
	NetworkType = 237
	Ignition    = 239
	Movement    = 240
	BTStatus    = 263
	InstantMov  = 303
	DOut3       = 380
	GNDSense    = 381
	WakeReason  = 637
)

// 2-byte elements.
const (
	AIn2         = 6
	AIn1         = 9
	FuelRateGPS  = 13
	EcoScore     = 15
	AxisX        = 17
	AxisY        = 18
	AxisZ        = 19
	VehicleSpeed = 24
	BLETemp1     = 25
	ExtVolt      = 66
	BatteryVolt  = 67
	BattCurrent  = 68
	BLEHumidity1 = 86
	GnssPDOP     = 181
	GnssHDOP     = 182
	LLS1FuelLvl  = 201
	LLS2FuelLvl  = 203
	GsmCellID    = 205
	GsmAreaCode  = 206
)

// 4-byte elements.
const (
	PulseCountDin1 = 4
	PulseCountDin2 = 5
	FuelUsedGPS    = 12
	TotalOdometer  = 16
	DallasTemp1    = 72
	DallasTemp2    = 73
	TripOdometer   = 199
	ActiveGsmOp    = 241
	UMTSLTECellID  = 636
	ConnQuality    = 1148
)

var names = map[uint16]string{
	DIn1:        "din1",
	DIn2:        "din2",
	DIn3:        "din3",
	SDStatus:    "sd_status",
	GSMSignal:   "gsm_signal",
	BLEBatt1:    "ble_batt1",
	GnssStatus:  "gnss_status",
	DataMode:    "data_mode",
	BattLevel:   "batt_level",
	DOut1:       "dout1",
	DOut2:       "dout2",
	SleepMode:   "sleep_mode",
	LLS1Temp:    "lls1_temp",
	LLS2Temp:    "lls2_temp",
	NetworkType: "network_type",
	Ignition:    "ignition",
	Movement:    "movement",
	BTStatus:    "bt_status",
	InstantMov:  "instant_movement",
	DOut3:       "dout3",
	GNDSense:    "gnd_sense",
	WakeReason:  "wake_reason",

	AIn2:         "ain2",
	AIn1:         "ain1",
	FuelRateGPS:  "fuel_rate_gps",
	EcoScore:     "eco_score",
	AxisX:        "axis_x",
	AxisY:        "axis_y",
	AxisZ:        "axis_z",
	VehicleSpeed: "vehicle_speed",
	BLETemp1:     "ble_temp1",
	ExtVolt:      "ext_volt",
	BatteryVolt:  "battery_volt",
	BattCurrent:  "batt_current",
	BLEHumidity1: "ble_humidity1",
	GnssPDOP:     "gnss_pdop",
	GnssHDOP:     "gnss_hdop",
	LLS1FuelLvl:  "lls1_fuel_level",
	LLS2FuelLvl:  "lls2_fuel_level",
	GsmCellID:    "gsm_cell_id",
	GsmAreaCode:  "gsm_area_code",

	PulseCountDin1: "pulse_count_din1",
	PulseCountDin2: "pulse_count_din2",
	FuelUsedGPS:    "fuel_used_gps",
	TotalOdometer:  "total_odometer",
	DallasTemp1:    "dallas_temp1",
	DallasTemp2:    "dallas_temp2",
	TripOdometer:   "trip_odometer",
	ActiveGsmOp:    "active_gsm_operator",
	UMTSLTECellID:  "umts_lte_cell_id",
	ConnQuality:    "connection_quality",
}

// Name returns the element's name, or "io_<id>" for ids without one.
func Name(id uint16) string {
	if n, ok := names[id]; ok {
		return n
	}
	return "io_" + strconv.Itoa(int(id))
}

// Known reports whether id has a name.
func Known(id uint16) bool {
	_, ok := names[id]
	return ok
}

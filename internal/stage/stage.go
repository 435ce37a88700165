package stage

import "strconv"

// Stage is the printer's current stage as reported in stg_cur.
type Stage int

// Idle is reported as 255 by current firmware and -1 by older firmware.
// Both normalise to Idle through FromReport.
const (
	Idle       Stage = 255
	idleLegacy Stage = -1
)

// Known stages.
const (
	Printing Stage = iota
	AutoBedLeveling
	HeatbedPreheating
	SweepingXYMechMode
	ChangingFilament
	M400Pause
	PausedFilamentRunout
	HeatingHotend
	CalibratingExtrusion
	ScanningBedSurface
	InspectingFirstLayer
	IdentifyingBuildPlate
	CalibratingMicroLidar
	HomingToolhead
	CleaningNozzleTip
	CheckingExtruderTemperature
	PausedByUser
	PausedFrontCoverFalling
	CalibratingLidar
	CalibratingExtrusionFlow
	PausedNozzleTemperature
	PausedHeatbedTemperature
	FilamentUnloading
	PausedSkipStep
	FilamentLoading
	CalibratingMotorNoise
	PausedAMSLost
	PausedHeatBreakFan
	PausedChamberTemperature
	CoolingChamber
	PausedByGcode
	MotorNoiseShowoff
	PausedNozzleFilamentCovered
	PausedCutterError
	PausedFirstLayerError
	PausedNozzleClog
)

var names = map[Stage]string{
	Idle:                        "Idle",
	Printing:                    "Printing",
	AutoBedLeveling:             "Auto bed leveling",
	HeatbedPreheating:           "Heatbed preheating",
	SweepingXYMechMode:          "Sweeping XY mech mode",
	ChangingFilament:            "Changing filament",
	M400Pause:                   "M400 pause",
	PausedFilamentRunout:        "Paused due to filament runout",
	HeatingHotend:               "Heating hotend",
	CalibratingExtrusion:        "Calibrating extrusion",
	ScanningBedSurface:          "Scanning bed surface",
	InspectingFirstLayer:        "Inspecting first layer",
	IdentifyingBuildPlate:       "Identifying build plate type",
	CalibratingMicroLidar:       "Calibrating Micro Lidar",
	HomingToolhead:              "Homing toolhead",
	CleaningNozzleTip:           "Cleaning nozzle tip",
	CheckingExtruderTemperature: "Checking extruder temperature",
	PausedByUser:                "Printing was paused by the user",
	PausedFrontCoverFalling:     "Pause of front cover falling",
	CalibratingLidar:            "Calibrating the micro lidar",
	CalibratingExtrusionFlow:    "Calibrating extrusion flow",
	PausedNozzleTemperature:     "Paused due to nozzle temperature malfunction",
	PausedHeatbedTemperature:    "Paused due to heat bed temperature malfunction",
	FilamentUnloading:           "Filament unloading",
	PausedSkipStep:              "Skip step pause",
	FilamentLoading:             "Filament loading",
	CalibratingMotorNoise:       "Motor noise calibration",
	PausedAMSLost:               "Paused due to AMS lost",
	PausedHeatBreakFan:          "Paused due to low speed of the heat break fan",
	PausedChamberTemperature:    "Paused due to chamber temperature control error",
	CoolingChamber:              "Cooling chamber",
	PausedByGcode:               "Paused by the Gcode inserted by user",
	MotorNoiseShowoff:           "Motor noise showoff",
	PausedNozzleFilamentCovered: "Nozzle filament covered detected pause",
	PausedCutterError:           "Cutter error pause",
	PausedFirstLayerError:       "First layer error pause",
	PausedNozzleClog:            "Nozzle clog pause",
}

// FromReport converts a raw stg_cur value, folding the legacy idle code into Idle.
func FromReport(v int) Stage {
	s := Stage(v)
	if s == idleLegacy {
		return Idle
	}
	return s
}

// IsIdle reports whether the printer is idle.
func (s Stage) IsIdle() bool {
	return s == Idle || s == idleLegacy
}

// String returns the display name, or "Stage N" for codes without one.
func (s Stage) String() string {
	if s == idleLegacy {
		return names[Idle]
	}
	if name, ok := names[s]; ok {
		return name
	}
	return "Stage " + strconv.Itoa(int(s))
}

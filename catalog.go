package fogsim

// catalog.go holds the built-in car-parking scenario and the named configurations
// a driver can select it with.  Cameras feed a motion detector, object detector and
// object tracker chain that steers the PTZ actuators; IR sensors feed an IR detector
// and a parking space detector.

import (
	"fmt"
	"sort"
	"strings"
)

// ParkingConfig sizes the car-parking topology
type ParkingConfig struct {
	EdgeNodesCount int  `json:"edgeNodesCount" yaml:"edgeNodesCount"`
	AreasCount     int  `json:"areasCount" yaml:"areasCount"`
	SensorsPerArea int  `json:"sensorsPerArea" yaml:"sensorsPerArea"`
	CamerasPerArea int  `json:"camerasPerArea" yaml:"camerasPerArea"`
	CloudBased     bool `json:"cloudBased" yaml:"cloudBased"`
}

func (pc ParkingConfig) String() string {
	return fmt.Sprintf("edgeNodesCount=%d areasCount=%d sensorsPerArea=%d camerasPerArea=%d cloudBased=%t",
		pc.EdgeNodesCount, pc.AreasCount, pc.SensorsPerArea, pc.CamerasPerArea, pc.CloudBased)
}

// parkingCatalog names the known configurations
var parkingCatalog = map[string]ParkingConfig{
	"CONFIG_1": {EdgeNodesCount: 3, AreasCount: 3, SensorsPerArea: 20, CamerasPerArea: 2, CloudBased: false},
	"CONFIG_2": {EdgeNodesCount: 3, AreasCount: 3, SensorsPerArea: 20, CamerasPerArea: 2, CloudBased: true},
	"CONFIG_3": {EdgeNodesCount: 1, AreasCount: 2, SensorsPerArea: 4, CamerasPerArea: 1, CloudBased: false},
	"CONFIG_4": {EdgeNodesCount: 2, AreasCount: 4, SensorsPerArea: 10, CamerasPerArea: 2, CloudBased: false},
	"CONFIG_5": {EdgeNodesCount: 2, AreasCount: 4, SensorsPerArea: 10, CamerasPerArea: 2, CloudBased: true},
}

// LookupConfig finds a configuration by name
func LookupConfig(name string) (ParkingConfig, bool) {
	cfg, present := parkingCatalog[strings.ToUpper(name)]
	return cfg, present
}

// ConfigNames lists the catalog's configuration names in order
func ConfigNames() []string {
	names := make([]string, 0, len(parkingCatalog))
	for name := range parkingCatalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Module names of the car-parking application
const (
	MotionDetector       = "motion_detector"
	ObjectDetector       = "object_detector"
	ObjectTracker        = "object_tracker"
	UserInterface        = "user_interface"
	IRDetector           = "ir_detector"
	ParkingSpaceDetector = "parking_space_detector"
	ParkingSpaceTracker  = "parking_space_tracker"
)

// ParkingTemplates are the device templates of the car-parking topology
func ParkingTemplates() []DeviceTemplateDesc {
	return []DeviceTemplateDesc{
		{Name: CloudTemplate, Mips: 44800, Ram: 40000, UpBw: 100, DownBw: 10000, Level: 0,
			RatePerMips: 0.01, BusyPower: 16 * 103, IdlePower: 16 * 83.25},
		{Name: ProxyTemplate, Mips: 2800, Ram: 4000, UpBw: 10000, DownBw: 10000, Level: 1,
			RatePerMips: 4, BusyPower: 107.339, IdlePower: 83.4333, UplinkLatencyMs: 120},
		{Name: EdgeNodeTemplate, Mips: 2800, Ram: 4000, UpBw: 10000, DownBw: 10000, Level: 2,
			RatePerMips: 2, BusyPower: 107.339, IdlePower: 83.4333, UplinkLatencyMs: 2},
		{Name: IRTemplate, Mips: 500, Ram: 1000, UpBw: 10000, DownBw: 10000, Level: 3,
			RatePerMips: 1, BusyPower: 87.53, IdlePower: 82.44, UplinkLatencyMs: 2},
		{Name: CameraTemplate, Mips: 500, Ram: 1000, UpBw: 10000, DownBw: 10000, Level: 3,
			RatePerMips: 2, BusyPower: 87.53, IdlePower: 82.44, UplinkLatencyMs: 2},
	}
}

// ParkingApp describes the car-parking application
func ParkingApp(name string, userID int) AppDesc {
	return AppDesc{
		Name:   name,
		UserID: userID,
		Modules: []ModuleDesc{
			{Name: ObjectDetector, Size: 10},
			{Name: MotionDetector, Size: 10},
			{Name: ObjectTracker, Size: 10},
			{Name: UserInterface, Size: 10},
			{Name: IRDetector, Size: 10},
			{Name: ParkingSpaceDetector, Size: 10},
			{Name: ParkingSpaceTracker, Size: 10},
		},
		Edges: []EdgeDesc{
			{Src: IRSensorType, Dst: IRDetector, CpuLength: 1000, NwLength: 20000, TupleType: IRSensorType,
				Direction: "UP", Kind: "SENSOR"},
			{Src: CameraSensorType, Dst: MotionDetector, CpuLength: 1000, NwLength: 20000, TupleType: CameraSensorType,
				Direction: "UP", Kind: "SENSOR"},
			{Src: IRDetector, Dst: ParkingSpaceDetector, CpuLength: 2000, NwLength: 2000, TupleType: "IR_STREAM",
				Direction: "UP", Kind: "MODULE"},
			{Src: MotionDetector, Dst: ObjectDetector, CpuLength: 2000, NwLength: 2000, TupleType: "MOTION_VIDEO_STREAM",
				Direction: "UP", Kind: "MODULE"},
			{Src: ObjectDetector, Dst: UserInterface, CpuLength: 500, NwLength: 2000, TupleType: "DETECTED_OBJECT",
				Direction: "UP", Kind: "MODULE"},
			{Src: ObjectDetector, Dst: ObjectTracker, CpuLength: 1000, NwLength: 100, TupleType: "OBJECT_LOCATION",
				Direction: "UP", Kind: "MODULE"},
			{Src: ObjectTracker, Dst: PTZActuatorType, CpuLength: 28, NwLength: 100, TupleType: "PTZ_PARAMS",
				Direction: "DOWN", Kind: "ACTUATOR", PeriodicityMs: 100},
		},
		Mappings: []MappingDesc{
			{Module: IRDetector, InputType: IRSensorType, OutputType: "IR_STREAM", Selectivity: 1.0},
			{Module: MotionDetector, InputType: CameraSensorType, OutputType: "MOTION_VIDEO_STREAM", Selectivity: 1.0},
			{Module: ObjectDetector, InputType: "MOTION_VIDEO_STREAM", OutputType: "OBJECT_LOCATION", Selectivity: 1.0},
			{Module: ObjectDetector, InputType: "MOTION_VIDEO_STREAM", OutputType: "DETECTED_OBJECT", Selectivity: 0.05},
		},
		Loops: [][]string{
			{MotionDetector, ObjectDetector, ObjectTracker},
			{IRDetector, ParkingSpaceDetector},
		},
	}
}

// ParkingScenario builds the car-parking scenario for the configuration.  Every
// camera carries a motion detector and every IR sensor device an IR detector; the
// user interface runs in the cloud, as do the object detector and tracker when the
// configuration is cloud based.
func ParkingScenario(name string, cfg ParkingConfig, horizonMs float64) (*ScenarioDesc, error) {
	sd := &ScenarioDesc{Name: name, EdgeNodesCount: cfg.EdgeNodesCount, AreasCount: cfg.AreasCount,
		SensorsPerArea: cfg.SensorsPerArea, CamerasPerArea: cfg.CamerasPerArea, CloudBased: cfg.CloudBased,
		SensorDist: DistDesc{Kind: "deterministic", Value: 5}, SensorLatencyMs: 1, ActuatorLatencyMs: 1,
		Templates: ParkingTemplates(), App: ParkingApp("car-parking", 1), HorizonMs: horizonMs}

	expanded, err := sd.Expand()
	if err != nil {
		return nil, err
	}
	hints := map[string][]string{UserInterface: {"cloud"}}
	for _, dd := range expanded.Devices {
		switch dd.Template {
		case CameraTemplate:
			hints[MotionDetector] = append(hints[MotionDetector], dd.Name)
		case IRTemplate:
			hints[IRDetector] = append(hints[IRDetector], dd.Name)
		}
	}
	if cfg.CloudBased {
		hints[ObjectDetector] = []string{"cloud"}
		hints[ObjectTracker] = []string{"cloud"}
	}
	sd.Hints = hints
	return sd, nil
}

package fogsim

// desc-scenario.go holds the serializable description of a simulation scenario:
// device templates and devices, sensors and actuators, the application, placement
// hints and run settings.  Descriptions are read and written as yaml or json,
// chosen by file extension.
//
// A scenario may list its devices explicitly, or give the car-parking area counts
// (edgeNodesCount, areasCount, sensorsPerArea, camerasPerArea) and let Expand
// generate the cloud, proxy, edge nodes, and per-area sensor devices from templates.

import (
	"errors"
	"fmt"
	"path"
)

// DeviceTemplateDesc gives the attributes shared by devices built from it
type DeviceTemplateDesc struct {
	Name             string  `json:"name" yaml:"name"`
	Mips             float64 `json:"mips" yaml:"mips"`
	Ram              int     `json:"ram" yaml:"ram"`
	UpBw             float64 `json:"upBw" yaml:"upBw"`
	DownBw           float64 `json:"downBw" yaml:"downBw"`
	Level            int     `json:"level" yaml:"level"`
	RatePerMips      float64 `json:"ratePerMips" yaml:"ratePerMips"`
	BusyPower        float64 `json:"busyPower" yaml:"busyPower"`
	IdlePower        float64 `json:"idlePower" yaml:"idlePower"`
	UplinkLatencyMs  float64 `json:"uplinkLatencyMs" yaml:"uplinkLatencyMs"`
	Provisioner      string  `json:"provisioner,omitempty" yaml:"provisioner,omitempty"`
	OverbookingRatio float64 `json:"overbookingRatio,omitempty" yaml:"overbookingRatio,omitempty"`
}

// DeviceDesc places one device built from a template in the tree.  An empty
// Parent makes the device the root.
type DeviceDesc struct {
	Name     string   `json:"name" yaml:"name"`
	Template string   `json:"template" yaml:"template"`
	Parent   string   `json:"parent,omitempty" yaml:"parent,omitempty"`
	Groups   []string `json:"groups,omitempty" yaml:"groups,omitempty"`
}

// SensorDesc describes a sensor attached to a gateway device
type SensorDesc struct {
	Name        string   `json:"name" yaml:"name"`
	TupleType   string   `json:"tupleType" yaml:"tupleType"`
	Gateway     string   `json:"gateway" yaml:"gateway"`
	LatencyMs   float64  `json:"latencyMs" yaml:"latencyMs"`
	Dist        DistDesc `json:"dist" yaml:"dist"`
	EmitAtStart bool     `json:"emitAtStart,omitempty" yaml:"emitAtStart,omitempty"`
	UserID      int      `json:"userId,omitempty" yaml:"userId,omitempty"`
	AppID       string   `json:"appId,omitempty" yaml:"appId,omitempty"`
}

// ActuatorDesc describes an actuator attached to a gateway device
type ActuatorDesc struct {
	Name         string  `json:"name" yaml:"name"`
	ActuatorType string  `json:"actuatorType" yaml:"actuatorType"`
	Gateway      string  `json:"gateway" yaml:"gateway"`
	LatencyMs    float64 `json:"latencyMs" yaml:"latencyMs"`
}

// ModuleDesc declares an application module
type ModuleDesc struct {
	Name string `json:"name" yaml:"name"`
	Size int    `json:"size" yaml:"size"`
}

// EdgeDesc declares an application edge.  Direction is UP or DOWN, Kind is
// SENSOR, MODULE or ACTUATOR.
type EdgeDesc struct {
	Src           string  `json:"src" yaml:"src"`
	Dst           string  `json:"dst" yaml:"dst"`
	CpuLength     float64 `json:"cpuLength" yaml:"cpuLength"`
	NwLength      float64 `json:"nwLength" yaml:"nwLength"`
	TupleType     string  `json:"tupleType" yaml:"tupleType"`
	Direction     string  `json:"direction" yaml:"direction"`
	Kind          string  `json:"kind" yaml:"kind"`
	PeriodicityMs float64 `json:"periodicityMs,omitempty" yaml:"periodicityMs,omitempty"`
}

// MappingDesc declares a tuple mapping
type MappingDesc struct {
	Module      string  `json:"module" yaml:"module"`
	InputType   string  `json:"inputType" yaml:"inputType"`
	OutputType  string  `json:"outputType" yaml:"outputType"`
	Selectivity float64 `json:"selectivity" yaml:"selectivity"`
}

// AppDesc describes the application
type AppDesc struct {
	Name     string        `json:"name" yaml:"name"`
	UserID   int           `json:"userId" yaml:"userId"`
	Modules  []ModuleDesc  `json:"modules" yaml:"modules"`
	Edges    []EdgeDesc    `json:"edges" yaml:"edges"`
	Mappings []MappingDesc `json:"mappings" yaml:"mappings"`
	Loops    [][]string    `json:"loops" yaml:"loops"`
}

// ScenarioDesc is the complete input of a simulation run
type ScenarioDesc struct {
	Name string `json:"name" yaml:"name"`

	// area form
	EdgeNodesCount    int      `json:"edgeNodesCount,omitempty" yaml:"edgeNodesCount,omitempty"`
	AreasCount        int      `json:"areasCount,omitempty" yaml:"areasCount,omitempty"`
	SensorsPerArea    int      `json:"sensorsPerArea,omitempty" yaml:"sensorsPerArea,omitempty"`
	CamerasPerArea    int      `json:"camerasPerArea,omitempty" yaml:"camerasPerArea,omitempty"`
	CloudBased        bool     `json:"cloudBased,omitempty" yaml:"cloudBased,omitempty"`
	SensorDist        DistDesc `json:"sensorDist,omitempty" yaml:"sensorDist,omitempty"`
	SensorLatencyMs   float64  `json:"sensorLatencyMs,omitempty" yaml:"sensorLatencyMs,omitempty"`
	ActuatorLatencyMs float64  `json:"actuatorLatencyMs,omitempty" yaml:"actuatorLatencyMs,omitempty"`

	Templates []DeviceTemplateDesc `json:"templates" yaml:"templates"`
	Devices   []DeviceDesc         `json:"devices,omitempty" yaml:"devices,omitempty"`
	Sensors   []SensorDesc         `json:"sensors,omitempty" yaml:"sensors,omitempty"`
	Actuators []ActuatorDesc       `json:"actuators,omitempty" yaml:"actuators,omitempty"`
	App       AppDesc              `json:"app" yaml:"app"`

	Hints         map[string][]string `json:"hints,omitempty" yaml:"hints,omitempty"`
	Placement     string              `json:"placement,omitempty" yaml:"placement,omitempty"`
	HorizonMs     float64             `json:"horizonMs" yaml:"horizonMs"`
	PowerSampleMs float64             `json:"powerSampleMs,omitempty" yaml:"powerSampleMs,omitempty"`
	Seed          uint64              `json:"seed,omitempty" yaml:"seed,omitempty"`
	Parameters    []ExpParameter      `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// WriteToFile stores the ScenarioDesc to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (sd *ScenarioDesc) WriteToFile(filename string) error {
	return writeDesc(filename, sd)
}

// ReadScenarioDesc deserializes a byte slice holding a ScenarioDesc.  If the slice
// is empty the file whose name is given is read to acquire it.
func ReadScenarioDesc(filename string, useYAML bool, dict []byte) (*ScenarioDesc, error) {
	sd := ScenarioDesc{}
	if err := readDesc(filename, useYAML, dict, &sd); err != nil {
		return nil, err
	}
	return &sd, nil
}

// UseYAML reports whether the file's extension names yaml
func UseYAML(filename string) bool {
	ext := path.Ext(filename)
	return ext == ".yaml" || ext == ".YAML" || ext == ".yml"
}

// Template finds a device template by name
func (sd *ScenarioDesc) Template(name string) (*DeviceTemplateDesc, bool) {
	for idx := range sd.Templates {
		if sd.Templates[idx].Name == name {
			return &sd.Templates[idx], true
		}
	}
	return nil, false
}

// PlacementPolicy names the placer to use; left empty it follows cloudBased
func (sd *ScenarioDesc) PlacementPolicy() string {
	if len(sd.Placement) > 0 {
		return sd.Placement
	}
	if sd.CloudBased {
		return StaticMappingName
	}
	return EdgewardsName
}

// Template names used by the area form
const (
	CloudTemplate    = "cloud"
	ProxyTemplate    = "proxy-server"
	EdgeNodeTemplate = "edge-node"
	IRTemplate       = "ir-sensor"
	CameraTemplate   = "camera"
)

// Sensor and actuator types of the car-parking application
const (
	CameraSensorType = "CAMERA"
	IRSensorType     = "IR_SENSOR"
	PTZActuatorType  = "PTZ_CONTROL"
)

// Expand returns a copy of the scenario in which the area form, if used, has been
// turned into explicit devices, sensors, and actuators.  Area i hangs below edge
// node i mod edgeNodesCount; each of its IR sensor and camera devices carries one
// sensor and one PTZ actuator.
func (sd *ScenarioDesc) Expand() (*ScenarioDesc, error) {
	out := *sd
	if sd.AreasCount == 0 && len(sd.Devices) > 0 {
		return &out, nil
	}

	ve := new(ValidationError)
	if sd.EdgeNodesCount < 1 {
		ve.add("edgeNodesCount %d must be at least 1", sd.EdgeNodesCount)
	}
	if sd.AreasCount < 1 {
		ve.add("areasCount %d must be at least 1", sd.AreasCount)
	}
	if sd.SensorsPerArea < 0 || sd.CamerasPerArea < 0 {
		ve.add("sensorsPerArea and camerasPerArea must not be negative")
	}
	for _, tmpl := range []string{CloudTemplate, ProxyTemplate, EdgeNodeTemplate, IRTemplate, CameraTemplate} {
		if _, present := sd.Template(tmpl); !present {
			ve.add("area form needs device template %q", tmpl)
		}
	}
	if err := ve.errOrNil(); err != nil {
		return nil, err
	}

	dist := sd.SensorDist
	if len(dist.Kind) == 0 && dist.Value == 0 {
		dist = DistDesc{Kind: "deterministic", Value: 5}
	}

	out.Devices = []DeviceDesc{
		{Name: "cloud", Template: CloudTemplate, Groups: []string{"cloud"}},
		{Name: "proxy-server", Template: ProxyTemplate, Parent: "cloud", Groups: []string{"proxy"}},
	}
	out.Sensors = make([]SensorDesc, 0)
	out.Actuators = make([]ActuatorDesc, 0)

	edgeName := func(idx int) string { return fmt.Sprintf("edge-node-EdgeNode#%d", idx) }
	for idx := 0; idx < sd.EdgeNodesCount; idx++ {
		out.Devices = append(out.Devices, DeviceDesc{Name: edgeName(idx), Template: EdgeNodeTemplate,
			Parent: "proxy-server", Groups: []string{"edge"}})
	}

	attach := func(devName, sensorType string, area int, tmpl string) {
		out.Devices = append(out.Devices, DeviceDesc{Name: devName, Template: tmpl,
			Parent: edgeName(area % sd.EdgeNodesCount), Groups: []string{fmt.Sprintf("area#%d", area)}})
		out.Sensors = append(out.Sensors, SensorDesc{Name: "s-" + devName, TupleType: sensorType,
			Gateway: devName, LatencyMs: sd.SensorLatencyMs, Dist: dist, UserID: sd.App.UserID, AppID: sd.App.Name})
		out.Actuators = append(out.Actuators, ActuatorDesc{Name: "ptz-" + devName, ActuatorType: PTZActuatorType,
			Gateway: devName, LatencyMs: sd.ActuatorLatencyMs})
	}
	for area := 0; area < sd.AreasCount; area++ {
		for j := 0; j < sd.SensorsPerArea; j++ {
			attach(fmt.Sprintf("ir-sensor-area#%d-%d", area, j), IRSensorType, area, IRTemplate)
		}
		for j := 0; j < sd.CamerasPerArea; j++ {
			attach(fmt.Sprintf("camera-area#%d-%d", area, j), CameraSensorType, area, CameraTemplate)
		}
	}
	return &out, nil
}

// buildDevices turns the device descriptions into topology devices, with ids drawn
// from nxtID in description order
func (sd *ScenarioDesc) buildDevices(nxtID func() int) ([]*Device, error) {
	ve := new(ValidationError)
	devices := make([]*Device, 0, len(sd.Devices))
	byName := make(map[string]*Device)

	for _, dd := range sd.Devices {
		tmpl, present := sd.Template(dd.Template)
		if !present {
			ve.add("device %q names unknown template %q", dd.Name, dd.Template)
			continue
		}
		if _, dup := byName[dd.Name]; dup {
			ve.add("duplicate device name %q", dd.Name)
			continue
		}
		variant, err := ProvisionerFromStr(tmpl.Provisioner)
		if err != nil {
			ve.add("template %q: %v", tmpl.Name, err)
		}
		dev := &Device{ID: nxtID(), Name: dd.Name, MIPS: tmpl.Mips, RAM: tmpl.Ram, UplinkBw: tmpl.UpBw,
			DownlinkBw: tmpl.DownBw, UplinkLatency: tmpl.UplinkLatencyMs, ParentID: NoParent, Level: tmpl.Level,
			RatePerMips: tmpl.RatePerMips, BusyPower: tmpl.BusyPower, IdlePower: tmpl.IdlePower,
			Provisioner: variant, OverbookingRatio: tmpl.OverbookingRatio, Template: tmpl.Name, Groups: dd.Groups}
		byName[dd.Name] = dev
		devices = append(devices, dev)
	}

	for _, dd := range sd.Devices {
		dev, present := byName[dd.Name]
		if !present || len(dd.Parent) == 0 {
			continue
		}
		parent, present := byName[dd.Parent]
		if !present {
			ve.add("device %q names unknown parent %q", dd.Name, dd.Parent)
			continue
		}
		dev.ParentID = parent.ID
	}
	if err := ve.errOrNil(); err != nil {
		return nil, err
	}
	return devices, nil
}

// buildApplication turns the application description into a validated Application.
// Sensor and actuator types are declared from the scenario's sensors and actuators.
func (sd *ScenarioDesc) buildApplication() (*Application, error) {
	ve := new(ValidationError)
	app := CreateApplication(sd.App.Name, sd.App.UserID)
	for _, sens := range sd.Sensors {
		app.DeclareSensorType(sens.TupleType)
	}
	for _, act := range sd.Actuators {
		app.DeclareActuatorType(act.ActuatorType)
	}
	for _, md := range sd.App.Modules {
		app.AddModule(md.Name, md.Size)
	}
	for _, ed := range sd.App.Edges {
		dir, err := DirectionFromStr(ed.Direction)
		if err != nil {
			ve.add("edge %s->%s: %v", ed.Src, ed.Dst, err)
		}
		kind, err := EdgeKindFromStr(ed.Kind)
		if err != nil {
			ve.add("edge %s->%s: %v", ed.Src, ed.Dst, err)
		}
		app.AddPeriodicEdge(ed.Src, ed.Dst, ed.PeriodicityMs, ed.CpuLength, ed.NwLength, ed.TupleType, dir, kind)
	}
	for _, md := range sd.App.Mappings {
		app.AddTupleMapping(md.Module, md.InputType, md.OutputType, md.Selectivity)
	}
	app.SetLoops(sd.App.Loops)

	if err := app.Validate(); err != nil {
		var appErr *ValidationError
		if errors.As(err, &appErr) {
			ve.Problems = append(ve.Problems, appErr.Problems...)
		} else {
			return nil, err
		}
	}
	if err := ve.errOrNil(); err != nil {
		return nil, err
	}
	return app, nil
}

package fogsim

// param.go holds run-time parameter overrides.  A parameter names the kind of
// object it configures (a device or a sensor), a list of attributes an object must
// match to receive it, the attribute of the object being set, and the value.  When
// several parameters set the same thing on the same object the most specific one
// wins: they are applied in order from most general (wildcard) to most specific
// (a name match), so later applications overwrite earlier ones.

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"sort"
	"strconv"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

// AttrbStruct holds the name of an attribute and a value for it
type AttrbStruct struct {
	AttrbName  string `json:"attrbname" yaml:"attrbname"`
	AttrbValue string `json:"attrbvalue" yaml:"attrbvalue"`
}

// CreateAttrbStruct is a constructor
func CreateAttrbStruct(attrbName, attrbValue string) *AttrbStruct {
	return &AttrbStruct{AttrbName: attrbName, AttrbValue: attrbValue}
}

// paramAttributes lists the attributes an object of each kind can be matched on
var paramAttributes = map[string][]string{
	"Device": {"name", "group", "template", "level", "*"},
	"Sensor": {"name", "type", "gateway", "*"},
}

// paramNames lists the settable attributes of each kind of object
var paramNames = map[string][]string{
	"Device": {"mips", "ram", "upBw", "downBw", "uplinkLatencyMs", "busyPower", "idlePower",
		"ratePerMips", "provisioner", "overbookingRatio"},
	"Sensor": {"latencyMs", "emitAtStart"},
}

// ValidateAttribute checks that the attribute named is one that associates with the parameter object type named
func ValidateAttribute(paramObj, attrbName string) bool {
	attrbs, present := paramAttributes[paramObj]
	if !present {
		return false
	}
	return slices.Contains(attrbs, attrbName)
}

// CompareAttrbs returns -1 if the first list is strictly more general than the second,
// 1 if the second is strictly more general than the first, and 0 otherwise.  A list is
// strictly more general when it is shorter and every name it holds appears in the other.
func CompareAttrbs(attrbs1, attrbs2 []AttrbStruct) int {
	contained := func(short, long []AttrbStruct) bool {
		for _, as := range short {
			found := false
			for _, al := range long {
				if al.AttrbName == as.AttrbName {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	}

	switch {
	case len(attrbs1) < len(attrbs2) && contained(attrbs1, attrbs2):
		return -1
	case len(attrbs2) < len(attrbs1) && contained(attrbs2, attrbs1):
		return 1
	}
	return 0
}

// EqAttrbs determines whether the two attribute lists hold the same (name, value) pairs
func EqAttrbs(attrbs1, attrbs2 []AttrbStruct) bool {
	if len(attrbs1) != len(attrbs2) {
		return false
	}
	for _, a1 := range attrbs1 {
		if !slices.Contains(attrbs2, a1) {
			return false
		}
	}
	for _, a2 := range attrbs2 {
		if !slices.Contains(attrbs1, a2) {
			return false
		}
	}
	return true
}

// ExpParameter describes one override.  ParamObj is "Device" or "Sensor"; every
// attribute listed must match for the override to apply.
type ExpParameter struct {
	ParamObj   string        `json:"paramObj" yaml:"paramObj"`
	Attributes []AttrbStruct `json:"attributes" yaml:"attributes"`
	Param      string        `json:"param" yaml:"param"`
	Value      string        `json:"value" yaml:"value"`
}

// Eq reports whether the two parameters are the same in every field
func (epp *ExpParameter) Eq(ep2 *ExpParameter) bool {
	return epp.ParamObj == ep2.ParamObj && epp.Param == ep2.Param && epp.Value == ep2.Value &&
		EqAttrbs(epp.Attributes, ep2.Attributes)
}

// CreateExpParameter is a constructor
func CreateExpParameter(paramObj string, attributes []AttrbStruct, param, value string) *ExpParameter {
	return &ExpParameter{ParamObj: paramObj, Attributes: attributes, Param: param, Value: value}
}

// AddAttribute includes another attribute to those the parameter requires.
// Only 'group' may appear more than once.
func (epp *ExpParameter) AddAttribute(attrbName, attrbValue string) error {
	if !ValidateAttribute(epp.ParamObj, attrbName) {
		return fmt.Errorf("attribute name %s not allowed for parameter object type %s", attrbName, epp.ParamObj)
	}
	for _, attrb := range epp.Attributes {
		if attrb.AttrbName == attrbName && attrb.AttrbValue == attrbValue {
			return nil
		}
		if attrb.AttrbName == attrbName && attrbName != "group" {
			return fmt.Errorf("attribute name %s already exists for parameter object", attrbName)
		}
	}
	epp.Attributes = append(epp.Attributes, *CreateAttrbStruct(attrbName, attrbValue))
	return nil
}

// ValidateParameter returns an error if the object kind, attributes, and parameter
// name don't make sense together
func ValidateParameter(paramObj string, attributes []AttrbStruct, param string) error {
	if _, present := paramAttributes[paramObj]; !present {
		return fmt.Errorf("parameter object %s is not recognized", paramObj)
	}
	for _, attrb := range attributes {
		if !ValidateAttribute(paramObj, attrb.AttrbName) {
			return fmt.Errorf("attribute %s not valid for parameter object type %s", attrb.AttrbName, paramObj)
		}
	}
	if !slices.Contains(paramNames[paramObj], param) {
		return fmt.Errorf("parameter %s not valid for parameter object type %s", param, paramObj)
	}
	return nil
}

// ExpCfg holds all of the parameters for a named experiment
type ExpCfg struct {
	Name       string         `json:"expname" yaml:"expname"`
	Parameters []ExpParameter `json:"parameters" yaml:"parameters"`
}

// CreateExpCfg is a constructor
func CreateExpCfg(name string) *ExpCfg {
	return &ExpCfg{Name: name, Parameters: make([]ExpParameter, 0)}
}

// AddParameter validates and adds a parameter
func (excfg *ExpCfg) AddParameter(paramObj string, attributes []AttrbStruct, param, value string) error {
	if err := ValidateParameter(paramObj, attributes, param); err != nil {
		return err
	}
	excfg.Parameters = append(excfg.Parameters, *CreateExpParameter(paramObj, attributes, param, value))
	return nil
}

// WriteToFile stores the ExpCfg to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (excfg *ExpCfg) WriteToFile(filename string) error {
	return writeDesc(filename, excfg)
}

// ReadExpCfg deserializes a byte slice holding an ExpCfg.  If the slice is empty
// the file whose name is given is read to acquire it.
func ReadExpCfg(filename string, useYAML bool, dict []byte) (*ExpCfg, error) {
	excfg := ExpCfg{}
	if err := readDesc(filename, useYAML, dict, &excfg); err != nil {
		return nil, err
	}
	return &excfg, nil
}

// reorderExpParams puts the parameters in an order such that the earlier elements
// apply to a broader range of objects than later ones that set the same thing.
// Wildcards come first, name matches last, everything else between ordered by
// generality; exact duplicates are dropped.
func reorderExpParams(pL []ExpParameter) []ExpParameter {
	wc := []ExpParameter{}
	sg := []ExpParameter{}
	nm := []ExpParameter{}

	for _, param := range pL {
		switch {
		case slices.ContainsFunc(param.Attributes, func(a AttrbStruct) bool { return a.AttrbName == "*" }):
			wc = append(wc, param)
		case slices.ContainsFunc(param.Attributes, func(a AttrbStruct) bool { return a.AttrbName == "name" }):
			nm = append(nm, param)
		default:
			sg = append(sg, param)
		}
	}

	sort.SliceStable(wc, func(i, j int) bool { return wc[i].Param < wc[j].Param })
	sort.SliceStable(sg, func(i, j int) bool { return CompareAttrbs(sg[i].Attributes, sg[j].Attributes) == -1 })
	sort.SliceStable(nm, func(i, j int) bool {
		if cmp := CompareAttrbs(nm[i].Attributes, nm[j].Attributes); cmp != 0 {
			return cmp == -1
		}
		return nm[i].Param < nm[j].Param
	})

	ordered := append(append(wc, sg...), nm...)
	for idx := len(ordered) - 1; idx > 0; idx-- {
		if ordered[idx].Eq(&ordered[idx-1]) {
			ordered = append(ordered[:idx], ordered[idx+1:]...)
		}
	}
	return ordered
}

// deviceMatches reports whether every attribute of the parameter holds for the device
func deviceMatches(dev *Device, attrbs []AttrbStruct) bool {
	for _, attrb := range attrbs {
		switch attrb.AttrbName {
		case "*":
		case "name":
			if dev.Name != attrb.AttrbValue {
				return false
			}
		case "group":
			if !slices.Contains(dev.Groups, attrb.AttrbValue) {
				return false
			}
		case "template":
			if dev.Template != attrb.AttrbValue {
				return false
			}
		case "level":
			if strconv.Itoa(dev.Level) != attrb.AttrbValue {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// sensorMatches reports whether every attribute of the parameter holds for the sensor
func sensorMatches(sd *SensorDesc, attrbs []AttrbStruct) bool {
	for _, attrb := range attrbs {
		switch attrb.AttrbName {
		case "*":
		case "name":
			if sd.Name != attrb.AttrbValue {
				return false
			}
		case "type":
			if sd.TupleType != attrb.AttrbValue {
				return false
			}
		case "gateway":
			if sd.Gateway != attrb.AttrbValue {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// setDeviceParam assigns the string-encoded value to the named device attribute
func setDeviceParam(dev *Device, param, value string) error {
	if param == "provisioner" {
		variant, err := ProvisionerFromStr(value)
		if err != nil {
			return err
		}
		dev.Provisioner = variant
		return nil
	}

	fvalue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("device %s parameter %s: value %q is not a number", dev.Name, param, value)
	}
	switch param {
	case "mips":
		dev.MIPS = fvalue
	case "ram":
		dev.RAM = int(fvalue)
	case "upBw":
		dev.UplinkBw = fvalue
	case "downBw":
		dev.DownlinkBw = fvalue
	case "uplinkLatencyMs":
		dev.UplinkLatency = fvalue
	case "busyPower":
		dev.BusyPower = fvalue
	case "idlePower":
		dev.IdlePower = fvalue
	case "ratePerMips":
		dev.RatePerMips = fvalue
	case "overbookingRatio":
		dev.OverbookingRatio = fvalue
	default:
		return fmt.Errorf("device parameter %s is not recognized", param)
	}
	return nil
}

// setSensorParam assigns the string-encoded value to the named sensor attribute
func setSensorParam(sd *SensorDesc, param, value string) error {
	switch param {
	case "latencyMs":
		fvalue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("sensor %s parameter %s: value %q is not a number", sd.Name, param, value)
		}
		sd.LatencyMs = fvalue
	case "emitAtStart":
		bvalue, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("sensor %s parameter %s: value %q is not a boolean", sd.Name, param, value)
		}
		sd.EmitAtStart = bvalue
	default:
		return fmt.Errorf("sensor parameter %s is not recognized", param)
	}
	return nil
}

// applyExpParams applies the parameters to the devices and sensors, most general first.
// Every problem found is gathered into the returned error.
func applyExpParams(params []ExpParameter, devices []*Device, sensors []SensorDesc) error {
	errs := []error{}
	for _, param := range reorderExpParams(params) {
		if err := ValidateParameter(param.ParamObj, param.Attributes, param.Param); err != nil {
			errs = append(errs, err)
			continue
		}
		switch param.ParamObj {
		case "Device":
			for _, dev := range devices {
				if deviceMatches(dev, param.Attributes) {
					errs = append(errs, setDeviceParam(dev, param.Param, param.Value))
				}
			}
		case "Sensor":
			for idx := range sensors {
				if sensorMatches(&sensors[idx], param.Attributes) {
					errs = append(errs, setSensorParam(&sensors[idx], param.Param, param.Value))
				}
			}
		}
	}
	return ReportErrs(errs)
}

// writeDesc serializes a description to the named file, as yaml or json by extension
func writeDesc(filename string, desc any) error {
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error

	switch pathExt {
	case ".yaml", ".YAML", ".yml":
		bytes, merr = yaml.Marshal(desc)
	case ".json", ".JSON":
		bytes, merr = json.MarshalIndent(desc, "", "\t")
	default:
		return fmt.Errorf("file %s: extension must name yaml or json", filename)
	}
	if merr != nil {
		return merr
	}
	return os.WriteFile(filename, bytes, 0o644)
}

// readDesc deserializes dict into desc.  If dict is empty the named file is read to acquire it.
func readDesc(filename string, useYAML bool, dict []byte, desc any) error {
	var err error
	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return err
		}
	}
	if useYAML {
		return yaml.Unmarshal(dict, desc)
	}
	return json.Unmarshal(dict, desc)
}

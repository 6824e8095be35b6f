package fogsim

// power.go holds the host power model and the meter that integrates it over
// virtual time.  Utilization changes only when the set of work in service on a
// host changes, so the meter is told about every change and accumulates
// P(u)·Δt over each constant segment.

import "math"

// PowerModel gives the power draw (Watts) at a utilization in [0,1]
type PowerModel interface {
	Power(util float64) float64
}

// LinearPowerModel interpolates between idle and busy power
type LinearPowerModel struct {
	BusyPower float64
	IdlePower float64
}

// Power returns idle + (busy - idle)*u, with u clamped to [0,1]
func (lpm LinearPowerModel) Power(util float64) float64 {
	u := math.Max(0.0, math.Min(1.0, util))
	return lpm.IdlePower + (lpm.BusyPower-lpm.IdlePower)*u
}

// PowerSampleRec is one point of a device's sampled power history
type PowerSampleRec struct {
	Time        float64 `json:"time" yaml:"time"`
	Utilization float64 `json:"utilization" yaml:"utilization"`
	Power       float64 `json:"power" yaml:"power"`
}

// EnergyMeter accumulates energy (Joules) and busy time for one device
type EnergyMeter struct {
	model      PowerModel
	lastUpdate float64 // ms
	util       float64
	energy     float64 // J
	busyTime   float64 // ms with util > 0
	utilTime   float64 // integral of util over ms
	samples    []PowerSampleRec
}

// CreateEnergyMeter is a constructor; the meter starts idle at time zero
func CreateEnergyMeter(model PowerModel) *EnergyMeter {
	em := new(EnergyMeter)
	em.model = model
	em.samples = make([]PowerSampleRec, 0)
	return em
}

// Update closes the segment that began at the last update, then records the new utilization
func (em *EnergyMeter) Update(now, util float64) {
	em.advance(now)
	em.util = util
}

// advance integrates the current segment up to now
func (em *EnergyMeter) advance(now float64) {
	dt := now - em.lastUpdate
	if dt > 0 {
		em.energy += em.model.Power(em.util) * dt / 1000.0
		if em.util > 0 {
			em.busyTime += dt
		}
		em.utilTime += em.util * dt
		em.lastUpdate = now
	}
}

// Sample closes the running segment at now and appends a point to the power history
func (em *EnergyMeter) Sample(now float64) {
	em.advance(now)
	em.samples = append(em.samples, PowerSampleRec{Time: now, Utilization: em.util, Power: em.model.Power(em.util)})
}

// Utilization is the utilization in force since the last update
func (em *EnergyMeter) Utilization() float64 {
	return em.util
}

// Energy returns the Joules accumulated up to the last update
func (em *EnergyMeter) Energy() float64 {
	return em.energy
}

// BusyTime returns the milliseconds during which utilization was positive
func (em *EnergyMeter) BusyTime() float64 {
	return em.busyTime
}

// MeanUtilization is the time-average utilization over [0, lastUpdate]
func (em *EnergyMeter) MeanUtilization() float64 {
	if !(em.lastUpdate > 0) {
		return 0.0
	}
	return em.utilTime / em.lastUpdate
}

// Samples returns the recorded power history
func (em *EnergyMeter) Samples() []PowerSampleRec {
	return em.samples
}

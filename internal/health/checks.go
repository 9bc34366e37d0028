package health

import (
	"context"
	"strconv"

	"github.com/jamesprial/healthmon/internal/schema"
	"github.com/jamesprial/healthmon/internal/status"
)

// CheckFans evaluates the fan class, counts the healthy fans, and warns
// about faulted or slow fans and about a healthy count below MinHealthyFans.
func (m *Monitor) CheckFans(ctx context.Context) (FanReport, error) {
	results, err := m.evaluate(ctx, schema.ClassFan)
	if err != nil {
		return FanReport{}, err
	}

	okNum := 0
	for _, r := range results {
		if !r.OK() {
			m.sink.Warningf("%%FAN-ERROR : %s : %s", r.ID, r.ErrMsg)
			continue
		}
		okNum++

		speed, ok := r.Get(SpeedProperty)
		if !ok {
			continue
		}
		rpm, err := strconv.ParseFloat(speed, 64)
		if err != nil {
			m.sink.Warningf("%%FAN-ERROR : %s Speed unreadable %q", r.ID, speed)
			continue
		}
		if rpm < MinFanSpeedRPM {
			m.sink.Warningf("%%FAN-ERROR : %s Speed too slow %s %s", r.ID, speed, "RPM")
		}
	}

	if okNum < MinHealthyFans {
		m.sink.Warningf("%%FAN-ERROR_FAN_NUM : %d", okNum)
	}
	return FanReport{Results: results, OKNum: okNum}, nil
}

// CheckPSUs evaluates the PSU class and warns about every faulted supply.
func (m *Monitor) CheckPSUs(ctx context.Context) ([]status.Result, error) {
	results, err := m.evaluate(ctx, schema.ClassPSU)
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		if !r.OK() {
			m.sink.Warningf("%%PSU-ERROR : %10s : %s", r.ID, r.ErrMsg)
		}
	}
	return results, nil
}

// CheckTemps evaluates the board temperature sensors and maps them onto the
// inlet, outlet, board and MAC readings. Readings at or above a configured
// threshold are warned about.
func (m *Monitor) CheckTemps(ctx context.Context) (TempReport, error) {
	results, err := m.evaluate(ctx, schema.ClassTemp)
	if err != nil {
		return TempReport{}, err
	}

	rep := TempReport{Results: results}
	for _, r := range results {
		if !r.OK() {
			m.sink.Warningf("%%TEMP-ERROR : %s : %s", r.ID, r.ErrMsg)
		}
		t, ok := resultTemp(r, TempProperty)
		if !ok {
			continue
		}

		switch r.ID {
		case "":
		case m.temps.Inlet:
			rep.InTemp = t
			m.warnAbove(r.ID, t, m.temps.InletMax)
		case m.temps.Outlet:
			rep.OutTemp = t
			m.warnAbove(r.ID, t, m.temps.OutletMax)
		case m.temps.Board:
			rep.BoardTemp = t
			m.warnAbove(r.ID, t, m.temps.BoardMax)
		case m.temps.MacAverage:
			rep.MacAverage = t
		case m.temps.MacMax:
			rep.MacMax = t
		}
	}
	return rep, nil
}

// CheckCPU evaluates the CPU temperature sensors and takes the package
// temperature from the sensor labelled TempBindings.CPULabel. Reaching the
// sensor's own max is warned about.
func (m *Monitor) CheckCPU(ctx context.Context) (CPUReport, error) {
	results, err := m.evaluate(ctx, schema.ClassCPU)
	if err != nil {
		return CPUReport{}, err
	}

	rep := CPUReport{Results: results}
	for _, r := range results {
		if !r.OK() {
			m.sink.Warningf("%%CPU-ERROR : %s : %s", r.ID, r.ErrMsg)
		}
		if name, _ := r.Get(cpuNameProperty); name != m.temps.CPULabel {
			continue
		}
		t, ok := resultTemp(r, cpuTempProperty)
		if !ok {
			continue
		}
		rep.CPUTemp = t
		if limit, ok := resultTemp(r, cpuMaxProperty); ok && limit.Celsius > 0 {
			m.warnAbove(m.temps.CPULabel, t, limit.Celsius)
		}
	}
	return rep, nil
}

func (m *Monitor) warnAbove(id string, t Temperature, limit float64) {
	if limit <= 0 || !t.Measured || t.Celsius < limit {
		return
	}
	m.sink.Warningf("%%TEMP-ERROR : %s %.1f C reached limit %.1f C", id, t.Celsius, limit)
}

// resultTemp parses the named property of r as degrees Celsius.
func resultTemp(r status.Result, property string) (Temperature, bool) {
	v, ok := r.Get(property)
	if !ok {
		return Temperature{}, false
	}
	c, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return Temperature{}, false
	}
	return Celsius(c), true
}

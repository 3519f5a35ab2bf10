package ocpp

import (
	"strconv"

	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"
)

// Reading 一组计量采样的解析结果
type Reading struct {
	PowerW    float64 `json:"power"`
	EnergyKWh float64 `json:"energy"`
	VoltageV  float64 `json:"voltage"`
	CurrentA  float64 `json:"current"`
	TempC     float64 `json:"temperature"`
}

// ParseMeterValues 从 MeterValues 序列中提取功率/电量/电压/电流/温度
// 纯函数：同一输入恒得同一输出
// 规则:
//   - Power.Active.Import → 瓦，后到覆盖先到
//   - Energy.Active.Import.Register → 缺省按 Wh 除以 1000 折 kWh，unit 显式 kWh 时原值采用
//   - Voltage / Current.Import 仅取 L1-N 相
//   - Temperature → 摄氏度
//   - measurand 缺失按电量寄存器处理，非数值按 0 处理，其余 measurand 忽略
func ParseMeterValues(meterValues []types.MeterValue) Reading {
	var r Reading
	for _, mv := range meterValues {
		for _, sv := range mv.SampledValue {
			value := parseFloat(sv.Value)

			switch sv.Measurand {
			case types.MeasurandPowerActiveImport:
				r.PowerW = value

			case types.MeasurandEnergyActiveImportRegister, "":
				if sv.Unit == types.UnitOfMeasureKWh {
					r.EnergyKWh = value
				} else {
					r.EnergyKWh = value / 1000
				}

			case types.MeasurandVoltage:
				if sv.Phase == types.PhaseL1N {
					r.VoltageV = value
				}

			case types.MeasurandCurrentImport:
				if sv.Phase == types.PhaseL1N {
					r.CurrentA = value
				}

			case types.MeasurandTemperature:
				r.TempC = value
			}
		}
	}
	return r
}

// parseFloat 容错解析：设备送来的非数值按 0 处理
func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

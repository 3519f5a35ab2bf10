package ocpp

import (
	"testing"

	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"
	"github.com/stretchr/testify/assert"
)

func sample(measurand types.Measurand, value string) types.SampledValue {
	return types.SampledValue{Measurand: measurand, Value: value}
}

func TestParseMeterValues(t *testing.T) {
	mv := []types.MeterValue{{
		SampledValue: []types.SampledValue{
			sample(types.MeasurandPowerActiveImport, "1500"),
			sample(types.MeasurandEnergyActiveImportRegister, "2400"),
			{Measurand: types.MeasurandVoltage, Phase: types.PhaseL1N, Value: "230"},
			{Measurand: types.MeasurandCurrentImport, Phase: types.PhaseL1N, Value: "6.5"},
			sample(types.MeasurandTemperature, "31.5"),
		},
	}}

	r := ParseMeterValues(mv)
	assert.Equal(t, 1500.0, r.PowerW)
	assert.Equal(t, 2.4, r.EnergyKWh)
	assert.Equal(t, 230.0, r.VoltageV)
	assert.Equal(t, 6.5, r.CurrentA)
	assert.Equal(t, 31.5, r.TempC)
}

func TestParseMeterValuesEnergyUnit(t *testing.T) {
	// 缺省单位按 Wh 折算
	r := ParseMeterValues([]types.MeterValue{{
		SampledValue: []types.SampledValue{sample(types.MeasurandEnergyActiveImportRegister, "3600")},
	}})
	assert.Equal(t, 3.6, r.EnergyKWh)

	// 显式 kWh 原值采用
	r = ParseMeterValues([]types.MeterValue{{
		SampledValue: []types.SampledValue{{
			Measurand: types.MeasurandEnergyActiveImportRegister,
			Unit:      types.UnitOfMeasureKWh,
			Value:     "3.6",
		}},
	}})
	assert.Equal(t, 3.6, r.EnergyKWh)
}

func TestParseMeterValuesMissingMeasurand(t *testing.T) {
	// measurand 缺失按电量寄存器处理
	r := ParseMeterValues([]types.MeterValue{{
		SampledValue: []types.SampledValue{{Value: "1000"}},
	}})
	assert.Equal(t, 1.0, r.EnergyKWh)
	assert.Equal(t, 0.0, r.PowerW)
}

func TestParseMeterValuesLastSampleWins(t *testing.T) {
	r := ParseMeterValues([]types.MeterValue{
		{SampledValue: []types.SampledValue{sample(types.MeasurandPowerActiveImport, "1000")}},
		{SampledValue: []types.SampledValue{sample(types.MeasurandPowerActiveImport, "2000")}},
	})
	assert.Equal(t, 2000.0, r.PowerW)
}

func TestParseMeterValuesIgnoresOthers(t *testing.T) {
	r := ParseMeterValues([]types.MeterValue{{
		SampledValue: []types.SampledValue{
			sample(types.MeasurandSoC, "80"),
			sample(types.MeasurandFrequency, "50"),
			// 非 L1-N 相的电压电流不采纳
			{Measurand: types.MeasurandVoltage, Phase: types.PhaseL2N, Value: "231"},
			{Measurand: types.MeasurandCurrentImport, Phase: types.PhaseL2N, Value: "7"},
		},
	}})
	assert.Equal(t, Reading{}, r)
}

func TestParseMeterValuesNonNumeric(t *testing.T) {
	// 设备送来非数值，按 0 处理，不抛错
	r := ParseMeterValues([]types.MeterValue{{
		SampledValue: []types.SampledValue{
			sample(types.MeasurandPowerActiveImport, "not-a-number"),
			sample(types.MeasurandEnergyActiveImportRegister, ""),
		},
	}})
	assert.Equal(t, 0.0, r.PowerW)
	assert.Equal(t, 0.0, r.EnergyKWh)
}

func TestParseMeterValuesPure(t *testing.T) {
	mv := []types.MeterValue{{
		SampledValue: []types.SampledValue{
			sample(types.MeasurandPowerActiveImport, "1500"),
			sample(types.MeasurandEnergyActiveImportRegister, "2400"),
		},
	}}

	first := ParseMeterValues(mv)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ParseMeterValues(mv))
	}
}

func TestParseMeterValuesEmpty(t *testing.T) {
	assert.Equal(t, Reading{}, ParseMeterValues(nil))
	assert.Equal(t, Reading{}, ParseMeterValues([]types.MeterValue{}))
}

package controller

import "github.com/KevinKickass/ImpedanceBridgeCore/internal/types"

func measurementField(m types.ChannelMeasurement, name string) (any, bool) {
	switch name {
	case "set_num":
		return m.SetNum, true
	case "set_char":
		return m.SetChar, true
	case "ch_num":
		return m.ChNum, true
	case "ch_type":
		return m.ChType, true
	case "freq":
		return m.Freq, true
	case "tau_int":
		return m.TauInt, true
	case "I_exc":
		return m.IExc, true
	case "V_exc":
		return m.VExc, true
	case "SNR":
		return m.SNR, true
	case "V_noise":
		return m.VNoise, true
	case "P_diss":
		return m.PDiss, true
	case "z_type":
		return m.ZType, true
	case "z_val":
		return m.ZVal, true
	case "z_unit":
		return m.ZUnit, true
	case "timestamp":
		return m.Timestamp, true
	default:
		return nil, false
	}
}

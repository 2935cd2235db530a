package logic

// Output levels. All outputs are active-low so that an unpowered or
// crashed controller leaves the loads stopped.
const (
	Allow = 0
	Safe  = 1
)

// PolicyInput is everything the output policy looks at.
type PolicyInput struct {
	State            State
	SensorValid      bool
	Ready            bool // boot grace period elapsed
	TestActive       bool
	TestAllowOutputs bool
	AllowPumpAtLow   bool
}

// Intent says which loads may run.
type Intent struct {
	AllowMaster bool
	AllowPump   bool
	AllowHeater bool
}

// AllSafe is the intent that stops every load.
var AllSafe = Intent{}

// Evaluate derives the output intent. Test mode without explicit output
// permission and the boot grace period both force everything safe. The
// master interlock follows pump permission; heater permission is narrower.
func Evaluate(in PolicyInput) Intent {
	if in.TestActive && !in.TestAllowOutputs {
		return AllSafe
	}
	if !in.Ready {
		return AllSafe
	}

	pump := in.SensorValid && (in.State == StateOK || (in.State == StateLow && in.AllowPumpAtLow))
	return Intent{
		AllowMaster: pump,
		AllowPump:   pump,
		AllowHeater: in.SensorValid && in.State == StateOK,
	}
}

// Levels returns the active-low drive values for master, pump and heater.
func (i Intent) Levels() (master, pump, heater int) {
	return level(i.AllowMaster), level(i.AllowPump), level(i.AllowHeater)
}

func level(allow bool) int {
	if allow {
		return Allow
	}
	return Safe
}

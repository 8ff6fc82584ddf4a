package configurator

// Task identifies one step of a device configuration run. The set is
// closed: the orchestrator dispatches through a single exhaustive switch,
// so a plan can be inspected and tested as plain data.
type Task int

// The recognized tasks, in the order a plan may contain them. All NVRAM
// writes precede Verify, so verification always checks the stored state;
// volatile-memory applies follow it.
const (
	TaskWriteManufacturerDesc Task = iota
	TaskWriteProductDesc
	TaskWriteUSBParameters
	TaskWriteChipSettings
	TaskWriteSPISettings
	TaskVerify
	TaskApplyChipSettings
	TaskApplySPISettings
)

func (t Task) String() string {
	switch t {
	case TaskWriteManufacturerDesc:
		return "write manufacturer descriptor"
	case TaskWriteProductDesc:
		return "write product descriptor"
	case TaskWriteUSBParameters:
		return "write USB parameters"
	case TaskWriteChipSettings:
		return "write chip settings"
	case TaskWriteSPISettings:
		return "write SPI settings"
	case TaskVerify:
		return "verify configuration"
	case TaskApplyChipSettings:
		return "apply chip settings"
	case TaskApplySPISettings:
		return "apply SPI settings"
	}
	return "unknown task"
}

// PlanTasks diffs the edited configuration against the device baseline and
// returns the ordered plan: one NVRAM write per changed section, always a
// verify step, and, only when applyImmediately is set, volatile-memory
// applies for the sections that changed. An empty diff still plans the
// verify step; detecting "nothing to do" is the caller's job.
func PlanTasks(device, edited Configuration, applyImmediately bool) []Task {

	var tasks []Task
	if edited.Manufacturer != device.Manufacturer {
		tasks = append(tasks, TaskWriteManufacturerDesc)
	}
	if edited.Product != device.Product {
		tasks = append(tasks, TaskWriteProductDesc)
	}
	if edited.USB != device.USB {
		tasks = append(tasks, TaskWriteUSBParameters)
	}
	if edited.Chip != device.Chip {
		tasks = append(tasks, TaskWriteChipSettings)
	}
	if edited.SPI != device.SPI {
		tasks = append(tasks, TaskWriteSPISettings)
	}
	tasks = append(tasks, TaskVerify)
	if applyImmediately {
		if edited.Chip != device.Chip {
			tasks = append(tasks, TaskApplyChipSettings)
		}
		if edited.SPI != device.SPI {
			tasks = append(tasks, TaskApplySPISettings)
		}
	}
	return tasks
}

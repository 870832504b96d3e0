package hephaistos

import (
	"strings"
	"sync"
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"golang.org/x/exp/slog"
)

const debugReportExtension = "VK_EXT_debug_report"

var loaderOnce struct {
	sync.Mutex
	done bool
}

// InitLoader resolves the Vulkan entry points. procAddr is a
// vkGetInstanceProcAddr pointer supplied by the windowing layer (for glfw,
// glfw.GetVulkanGetInstanceProcAddress()); nil loads the system library.
// NewInstance calls it with nil when it has not run yet. Only the first
// call has an effect.
func InitLoader(procAddr unsafe.Pointer) error {
	loaderOnce.Lock()
	defer loaderOnce.Unlock()
	if loaderOnce.done {
		return nil
	}
	if procAddr != nil {
		vk.SetGetInstanceProcAddr(procAddr)
	} else if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		return withKind(errors.Wrap(err, "load vulkan library"), ErrVulkanUnavailable)
	}
	if err := vk.Init(); err != nil {
		return withKind(errors.Wrap(err, "init vulkan"), ErrVulkanUnavailable)
	}
	loaderOnce.done = true
	return nil
}

// Instance is the process-wide connection to the driver. It owns the
// diagnostic callback and must be destroyed after everything created from it.
type Instance struct {
	Raw vk.Instance

	cfg           Config
	logger        *slog.Logger
	layers        []string
	debugCallback vk.DebugReportCallback
}

// NewInstance creates the driver instance. provider may be nil for headless
// use; otherwise its required extensions are enabled so that surfaces can be
// created from it.
func NewInstance(cfg Config, provider SurfaceProvider, logger *slog.Logger) (*Instance, error) {
	if logger == nil {
		logger = discardLogger()
	}
	if err := InitLoader(nil); err != nil {
		return nil, err
	}
	inst := &Instance{cfg: cfg, logger: logger}

	var required []string
	if provider != nil {
		required = provider.GetRequiredInstanceExtensions()
	}
	available, err := InstanceExtensions()
	if err != nil {
		return nil, err
	}
	extensions, missing := checkExisting(available, required)
	if len(missing) > 0 {
		return nil, fatalf(errors.Newf("missing %v", missing), "required instance extensions")
	}

	debug := false
	if cfg.Validation {
		found, _ := checkExisting(available, []string{debugReportExtension})
		if len(found) > 0 {
			extensions = append(extensions, debugReportExtension)
			debug = true
		} else {
			logger.Warn("debug report extension unavailable")
		}
		actualLayers, err := ValidationLayers()
		if err != nil {
			return nil, err
		}
		var missingLayers []string
		inst.layers, missingLayers = checkExisting(actualLayers, cfg.ValidationLayers)
		if len(missingLayers) > 0 {
			logger.Warn("validation layers unavailable", slog.Any("layers", missingLayers))
		}
	}
	logger.Info("creating instance",
		slog.Int("extensions", len(extensions)), slog.Int("layers", len(inst.layers)))

	var instance vk.Instance
	ret := vk.CreateInstance(&vk.InstanceCreateInfo{
		SType: vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &vk.ApplicationInfo{
			SType:              vk.StructureTypeApplicationInfo,
			ApiVersion:         uint32(vk.MakeVersion(1, 2, 0)),
			ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
			PApplicationName:   safeString(cfg.AppName),
			PEngineName:        safeString(cfg.EngineName),
		},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
		EnabledLayerCount:       uint32(len(inst.layers)),
		PpEnabledLayerNames:     safeStrings(inst.layers),
	}, nil, &instance)
	if err := checkResult(ret, "create instance"); err != nil {
		return nil, err
	}
	inst.Raw = instance
	if err := vk.InitInstance(instance); err != nil {
		vk.DestroyInstance(instance, nil)
		return nil, fatalf(err, "init instance")
	}

	if debug {
		ret := vk.CreateDebugReportCallback(instance, &vk.DebugReportCallbackCreateInfo{
			SType: vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags: vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit |
				vk.DebugReportPerformanceWarningBit | vk.DebugReportInformationBit),
			PfnCallback: inst.debugReport,
		}, nil, &inst.debugCallback)
		if err := checkResult(ret, "create debug report callback"); err != nil {
			vk.DestroyInstance(instance, nil)
			return nil, err
		}
	}
	return inst, nil
}

// Logger returns the logger shared by objects created from the instance.
func (inst *Instance) Logger() *slog.Logger {
	return inst.logger
}

// Destroy releases the diagnostic callback and the instance.
func (inst *Instance) Destroy() {
	if inst.Raw == nil {
		return
	}
	if inst.debugCallback != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(inst.Raw, inst.debugCallback, nil)
		inst.debugCallback = vk.NullDebugReportCallback
	}
	vk.DestroyInstance(inst.Raw, nil)
	inst.Raw = nil
}

// Diagnostic severities and categories reported by the debug callback.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
	SeverityInfo    = "info"

	CategoryGeneral     = "general"
	CategoryValidation  = "validation"
	CategoryPerformance = "performance"
)

func classifyDebugReport(flags vk.DebugReportFlags, layerPrefix string) (severity, category string) {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		severity = SeverityError
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit|vk.DebugReportPerformanceWarningBit) != 0:
		severity = SeverityWarning
	default:
		severity = SeverityInfo
	}
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		category = CategoryPerformance
	case strings.Contains(strings.ToLower(layerPrefix), "validation"):
		category = CategoryValidation
	default:
		category = CategoryGeneral
	}
	return severity, category
}

func (inst *Instance) debugReport(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType,
	object uint64, location uint64, messageCode int32, pLayerPrefix string,
	pMessage string, pUserData unsafe.Pointer) vk.Bool32 {

	severity, category := classifyDebugReport(flags, pLayerPrefix)
	attrs := []any{
		slog.String("severity", severity),
		slog.String("category", category),
		slog.String("layer", pLayerPrefix),
		slog.Int("code", int(messageCode)),
	}
	switch severity {
	case SeverityError:
		inst.logger.Error(pMessage, attrs...)
	case SeverityWarning:
		inst.logger.Warn(pMessage, attrs...)
	default:
		inst.logger.Info(pMessage, attrs...)
	}
	return vk.Bool32(vk.False)
}

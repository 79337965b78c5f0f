package cli

import "fmt"

func Run(args []string) error {
	if len(args) == 0 {
		printRootUsage()
		return nil
	}

	switch args[0] {
	case "render":
		return runRender(args[1:], false)
	case "restart":
		return runRender(args[1:], true)
	case "status":
		return runStatus(args[1:])
	case "clear":
		return runClear(args[1:])
	case "probe":
		return runProbe(args[1:])
	case "doctor":
		return runDoctor(args[1:])
	case "settings":
		return runSettings(args[1:])
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	default:
		printRootUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printRootUsage() {
	fmt.Println("blender-render-manager: crash-resilient batch rendering for Blender scenes")
	fmt.Println()
	fmt.Println("Quick Start:")
	fmt.Println("  blender-render-manager settings set --blender /path/to/blender")
	fmt.Println("  blender-render-manager render scene.blend")
	fmt.Println("  blender-render-manager status scene.blend")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  render    render a scene, resuming from the last completed frame")
	fmt.Println("  restart   clear the scene's checkpoint, then render from scratch")
	fmt.Println("  status    show the stored checkpoint for a scene")
	fmt.Println("  clear     delete the stored checkpoint for a scene")
	fmt.Println("  probe     read frame range and output settings from a scene")
	fmt.Println("  doctor    run dependency and filesystem preflight checks")
	fmt.Println("  settings  show/update global settings")
	fmt.Println()
	fmt.Println("Notes:")
	fmt.Println("  - Use --json on query commands for machine-readable output")
	fmt.Println("  - render --watch attaches an interactive progress view (press c to cancel)")
}

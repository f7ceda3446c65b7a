// Command memctl boots the memory subsystem from a seed file and inspects
// the resulting address space, memory map and allocators.
package main

func main() {
	execute()
}

// Package topology parses the system definition file describing entities,
// the nodes of each entity and the modules loaded on each node.
//
//	entities:
//	  local:
//	    options:
//	      access_mode: in_place      # or custom
//	      processing_threads: 1
//	      workflow_tty: false
//	    nodes:
//	      cpu:
//	        backend: perf
//	        options:
//	          freq: 100
//	          events: [cycles, instructions]
//	        modules:
//	          - regions
//	          - name: extra
//	            options: {level: 2}
//	    edges:
//	      link:
//	        path: [cpu, gpu]
//
// Map order is preserved so nodes and modules keep the order in which they
// are declared.
package topology

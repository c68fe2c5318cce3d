// Package hcl provides the HCL implementations used by the service: the
// config.Loader for configuration files, and the text codec that persists
// computation graphs.
//
// A persisted graph looks like this:
//
//	graph "rb_sor" {
//	  dtype = "float64"
//	  opset = 13
//
//	  input "U" {
//	    shape = ["b", "c", "h", "w"]
//	  }
//	  initializer "W" {
//	    shape = [1, 1, 3, 3]
//	    data  = [0, 1, 0, 1, 0, 1, 0, 1, 0]
//	  }
//	  node "S1" {
//	    op     = "Conv"
//	    inputs = [U, W]
//	    output = "S1"
//	    pads   = [1, 1, 1, 1]
//	  }
//	}
//
// Node inputs are written as bare references to value names. Decoding a
// graph always runs it through opgraph.New, so a file that fails the
// self-check never produces a *opgraph.Graph.
package hcl

package main

import "github.com/drpcorg/objgraph"

// Node is the one class the shell works with.
type Node struct {
	objgraph.Base
	Value string
	Next  []objgraph.Ptr[*Node]
}

func newRegistry() *objgraph.Registry {
	reg := objgraph.NewRegistry()
	reg.MustRegister(objgraph.Class{
		Name: "objsh.Node",
		New:  func() objgraph.Object { return &Node{} },
		Fields: objgraph.FieldsOf(func(n *Node, ar *objgraph.Archive) {
			ar.String(&n.Value)
			objgraph.Refs(ar, &n.Next)
		}),
	})
	return reg
}

/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package host

// MethodInfo is a ready-made Method implementation for environments that
// describe methods by plain metadata. A *MethodInfo is comparable by identity,
// satisfying the stability requirement of Method.
type MethodInfo struct {
	ClassName  string
	MethodName string
	Sig        string
	File       string
}

func (m *MethodInfo) Class() string      { return m.ClassName }
func (m *MethodInfo) Name() string       { return m.MethodName }
func (m *MethodInfo) Signature() string  { return m.Sig }
func (m *MethodInfo) SourceFile() string { return m.File }

// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

/*
Package lifecycle implements the configure/start/stop/shutdown state
machine shared by actors, operators and other long-lived components.

A component embeds or holds a Partial and supplies its behaviour through
the Hooks interface:

	p := lifecycle.NewPartial("vfc.Restart", hooks)
	if err := p.Configure(params); err != nil {
	    // parameters rejected, previous configuration still in effect
	}
	if err := p.Start(); err != nil {
	    // start hook failed, component is not alive
	}
	defer p.Shutdown()

# States

A component is UNCONFIGURED until Configure succeeds, then CONFIGURED,
and ALIVE after Start. Stop returns it to CONFIGURED. Configure is
rejected while ALIVE. Stop and Shutdown only call their hook when the
component is ALIVE, and always leave it not alive even if the hook fails.

# Event log

Transitions can be appended as JSON lines to a file with EventLog, which
is useful when the process is run under a supervisor.
*/
package lifecycle

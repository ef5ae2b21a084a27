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
Package cli provides the root command of the remediator CLI.

The command tree is:

	remediator
	├── run        Start the actors and apply configuration edits
	├── invoke     Run one operation and print its outcome
	├── validate   Check a configuration file
	└── version    Show version

Global flags (--verbose, --json, --config) are registered on the root
and read through internal/commands/shared. Commands return errors
carrying an exit code; HandleExitError prints them and exits.
*/
package cli

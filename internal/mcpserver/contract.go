package mcpserver

// ActionContract describes the action format that LLM consumers must use
// when changing the tree through play_action.
const ActionContract = `# Squirrel Action Contract

The tree is only ever changed by replaying actions. Each action names a
node by its path, a list of keys from the top level down. When a path is
given as a single string, keys are joined with "↘".

## Actions

| type | path names        | data                                   |
|------|-------------------|----------------------------------------|
| N    | the new node      | a string for a leaf, omit for a folder |
| D    | the node          | none                                   |
| E    | a leaf            | the new value                          |
| R    | the node          | the new key                            |
| A    | the node          | {"due": ms, "repeat": ms} or days      |
| C    | the node          | none (cancels the alarm)               |
| X    | the node          | {"size": n, "chars": "A-Z0-9"} or none |
| I    | the parent folder | {"name": key, "node": {...}}           |
| M    | the node          | the destination folder path            |

## Rules

1. **The parent must exist.** N, I and M fail with a conflict otherwise.
2. **Keys are unique** within a folder and may not contain "↘".
3. **Times** are milliseconds since the epoch. Omit time to use now.
4. **Conflicts are not errors.** A conflicting action leaves the tree
   unchanged and comes back with a message explaining why.

## Example

` + "```" + `json
{"type": "N", "path": ["Sites", "Bank"], "data": "hunter2"}
` + "```" + `
`

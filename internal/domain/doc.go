// Package domain defines the core business entities of the task platform:
// tasks, projects, their embedded members and milestones, and the user view
// projected from the user directory. Entities validate themselves; all
// cross-entity rules (dependency acyclicity, membership authorization,
// foreign-reference existence) live in the orchestrating service layer.
package domain

// Package tools holds the tool registry and the platform tool catalog.
//
// A Tool pairs a JSON Schema (draft 2020-12) with a Handler. Registry.Call
// looks the tool up, validates the arguments, and invokes the handler with the
// caller's API, which is the authenticated platform pipeline for the caller's
// credentials. Handlers never retry; the pipeline owns the 401 policy.
//
// Catalog covers three resources:
//
//	map     /api/v1/map      list_maps    get_map    create_map    update_map    delete_map
//	post    /api/v1/post     list_posts   get_post   create_post   update_post   delete_post
//	action  /api/v1/action   list_actions get_action create_action update_action delete_action
//
// Posts accept a markdown field in place of content; it is rendered to HTML
// before the request is sent.
package tools

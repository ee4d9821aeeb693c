package sqlinline

const QInsertProject = `--sql adda98e1-5ddc-422d-bb89-d5b2e3daeff7
insert into projects (id, user_id, name, prompts, captions, created_at, updated_at)
values ($1::uuid, $2::uuid, $3::text, $4::text[], $5::jsonb, now(), now())
returning id::text;
`

const QUpdateProject = `--sql 6f800244-d3a5-4a17-b3b7-9febfc3848e7
update projects set
    name = $3::text,
    prompts = $4::text[],
    captions = $5::jsonb,
    updated_at = now()
where id = $1::uuid
  and user_id = $2::uuid
returning id::text;
`

// QUpsertProjectOutput returns the storage path the row held before, or ''
// for a new row.
const QUpsertProjectOutput = `--sql 8a6759b4-a12f-4035-ba01-6fb58924441d
with previous as (
    select storage_path
    from project_outputs
    where project_id = $1::uuid
      and scene_index = $2::int
)
insert into project_outputs (project_id, scene_index, prompt, storage_path, mime_type, updated_at)
values ($1::uuid, $2::int, $3::text, $4::text, $5::text, now())
on conflict (project_id, scene_index) do update set
    prompt = excluded.prompt,
    storage_path = excluded.storage_path,
    mime_type = excluded.mime_type,
    updated_at = now()
returning coalesce((select storage_path from previous), '');
`

const QDeleteOutputsFromIndex = `--sql 2cd95b34-065d-48b2-b7ce-bd9363ebdaf2
delete from project_outputs
where project_id = $1::uuid
  and scene_index >= $2::int;
`

const QListProjects = `--sql eb3cb55e-db99-4894-bf7f-b2bda776c7e9
select id::text, name, prompts, captions, created_at, updated_at
from projects
where user_id = $1::uuid
order by updated_at desc
limit $2::int offset $3::int;
`

const QSelectProject = `--sql c0bb7b65-8e5a-44f3-a55a-e2b923a7ae37
select id::text, name, prompts, captions, created_at, updated_at
from projects
where id = $1::uuid
  and user_id = $2::uuid
limit 1;
`

const QListProjectOutputs = `--sql 1453ca61-8a71-45a8-aa70-dbd92e74234a
select scene_index, prompt, storage_path, mime_type
from project_outputs
where project_id = $1::uuid
order by scene_index asc;
`

const QDeleteProject = `--sql e5ee2d49-d97e-411b-98de-5b76aae41cdd
delete from projects
where id = $1::uuid
  and user_id = $2::uuid;
`
